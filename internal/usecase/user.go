package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/repository"
)

var adminRoles = []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}

// UpdateProfileInput holds the optional fields of a profile update.
type UpdateProfileInput struct {
	FullName *string
	Username *string
	Avatar   *domain.UploadedFile
}

// UserService handles user administration.
type UserService struct {
	users   port.UserAdminRepository
	avatars port.FileStore
	logger  *zap.Logger
}

// NewUserService constructs UserService. avatars may be nil, in which case
// avatar uploads are rejected.
func NewUserService(users port.UserAdminRepository, avatars port.FileStore, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{users: users, avatars: avatars, logger: log}
}

// List returns a page of all users.
func (s *UserService) List(ctx context.Context, query domain.ListQuery) (domain.Page[domain.User], error) {
	page, err := s.users.List(ctx, query, nil)
	if err != nil {
		return page, fmt.Errorf("list users: %w", err)
	}
	return page, nil
}

// ListAdmins returns a page of ADMIN and SUPERADMIN users.
func (s *UserService) ListAdmins(ctx context.Context, query domain.ListQuery) (domain.Page[domain.User], error) {
	page, err := s.users.List(ctx, query, adminRoles)
	if err != nil {
		return page, fmt.Errorf("list admins: %w", err)
	}
	return page, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.found(s.users.GetByID(ctx, id))
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.found(s.users.GetByUsername(ctx, username))
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.found(s.users.GetByEmail(ctx, email))
}

// UpdateProfile changes the profile of id on behalf of actor. Owners and admins may update.
func (s *UserService) UpdateProfile(ctx context.Context, actor domain.Principal, id string, in UpdateProfileInput) (*domain.User, error) {
	if actor.UserID != id && !actor.Role.IsAdmin() {
		return nil, ErrNotAllowedToUpdateUser
	}

	update := domain.ProfileUpdate{FullName: in.FullName}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		holder, err := s.users.GetByUsername(ctx, username)
		switch {
		case err == nil && holder.ID != id:
			return nil, ErrProfileUsernameTaken
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("lookup username: %w", err)
		}
		update.Username = &username
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if in.Avatar != nil {
		if err := ValidateImage(*in.Avatar, DefaultMaxUploadBytes); err != nil {
			return nil, err
		}
		if s.avatars == nil {
			return nil, ErrUnknownFileStore
		}
		stored, err := s.avatars.Store(ctx, *in.Avatar)
		if err != nil {
			return nil, fmt.Errorf("upload avatar: %w", err)
		}
		update.Avatar = &stored.URL
	}

	if err := s.users.UpdateProfile(ctx, id, update); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrProfileUsernameTaken
		case errors.Is(err, repository.ErrValueTooLong):
			return nil, ErrProfileValueTooLong
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.Info("user profile updated", zap.String("user_id", id), zap.String("actor_id", actor.UserID))
	return s.GetByID(ctx, id)
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// Promote grants ADMIN to a USER.
func (s *UserService) Promote(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role.IsAdmin() {
		return nil, ErrAlreadyPromoted
	}
	return s.setRole(ctx, user, domain.RoleAdmin)
}

// Demote returns an ADMIN or SUPERADMIN to USER.
func (s *UserService) Demote(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == domain.RoleUser {
		return nil, ErrNotAnAdmin
	}
	return s.setRole(ctx, user, domain.RoleUser)
}

func (s *UserService) setRole(ctx context.Context, user *domain.User, role domain.Role) (*domain.User, error) {
	if err := s.users.UpdateRole(ctx, user.ID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.logger.Info("user role changed",
		zap.String("user_id", user.ID),
		zap.String("from", string(user.Role)),
		zap.String("to", string(role)),
	)
	user.Role = role
	return user, nil
}

func (s *UserService) found(user *domain.User, err error) (*domain.User, error) {
	if err == nil {
		return user, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return nil, fmt.Errorf("lookup user: %w", err)
}
