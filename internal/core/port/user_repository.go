package port

import (
	"context"
	"time"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
// Lookups return repository.ErrNotFound when no row matches.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	Save(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error)
}

// UserAdminRepository covers the administrative user operations.
type UserAdminRepository interface {
	UserRepository
	List(ctx context.Context, query domain.ListQuery, roles []domain.Role) (domain.Page[domain.User], error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) error
	Delete(ctx context.Context, id string) error
}
