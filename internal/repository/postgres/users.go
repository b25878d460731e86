package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/repository"
)

const usersTable = "shop.users"

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"full_name",
	"avatar",
	"role",
	"is_verified_email",
	"is_active",
	"otp_hash",
	"otp_expires_at",
	"password_changed_at",
	"password_reset_token_hash",
	"password_reset_expires_at",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserAdminRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.FullName,
			user.Avatar,
			string(user.Role),
			user.IsVerifiedEmail,
			user.IsActive,
			user.OTPHash,
			user.OTPExpiresAt,
			user.PasswordChangedAt,
			user.PasswordResetTokenHash,
			user.PasswordResetExpiresAt,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert user", err)
	}
	return nil
}

// Save overwrites every mutable column of an existing user.
func (r *UserRepository) Save(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update(usersTable).
		SetMap(map[string]any{
			"username":                  user.Username,
			"email":                     user.Email,
			"password_hash":             user.PasswordHash,
			"full_name":                 user.FullName,
			"avatar":                    user.Avatar,
			"role":                      string(user.Role),
			"is_verified_email":         user.IsVerifiedEmail,
			"is_active":                 user.IsActive,
			"otp_hash":                  user.OTPHash,
			"otp_expires_at":            user.OTPExpiresAt,
			"password_changed_at":       user.PasswordChangedAt,
			"password_reset_token_hash": user.PasswordResetTokenHash,
			"password_reset_expires_at": user.PasswordResetExpiresAt,
			"updated_at":                user.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)})
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"username": username})
}

// GetByResetTokenHash finds the user holding an unexpired reset token digest.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	return r.getOne(ctx, squirrel.And{
		squirrel.Eq{"password_reset_token_hash": tokenHash},
		squirrel.Gt{"password_reset_expires_at": now},
	})
}

// List returns a page of users, optionally restricted to the given roles.
func (r *UserRepository) List(ctx context.Context, query domain.ListQuery, roles []domain.Role) (domain.Page[domain.User], error) {
	query = query.Normalize()
	page := domain.Page[domain.User]{Page: query.Page, Limit: query.Limit}

	filter := squirrel.And{}
	if len(roles) > 0 {
		values := make([]string, len(roles))
		for i, role := range roles {
			values[i] = string(role)
		}
		filter = append(filter, squirrel.Eq{"role": values})
	}

	countStmt, countArgs, err := r.builder.Select("COUNT(*)").From(usersTable).Where(filter).ToSql()
	if err != nil {
		return page, fmt.Errorf("build count users sql: %w", err)
	}
	if err := r.exec.QueryRow(ctx, countStmt, countArgs...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count users: %w", err)
	}

	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(filter).
		OrderBy(fmt.Sprintf("%s %s", query.SortBy, query.SortOrder)).
		Limit(uint64(query.Limit)).
		Offset(uint64(query.Offset())).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return page, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	page.Items = make([]domain.User, 0, query.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return page, fmt.Errorf("scan user: %w", err)
		}
		page.Items = append(page.Items, *user)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterate users: %w", err)
	}

	return page, nil
}

// UpdateRole sets the role of a user.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return r.update(ctx, id, map[string]any{"role": string(role)}, "update user role")
}

// UpdateProfile applies the non-nil profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) error {
	if update.Empty() {
		return nil
	}

	values := make(map[string]any, 3)
	if update.FullName != nil {
		values["full_name"] = *update.FullName
	}
	if update.Username != nil {
		values["username"] = *update.Username
	}
	if update.Avatar != nil {
		values["avatar"] = *update.Avatar
	}
	return r.update(ctx, id, values, "update user profile")
}

// Delete removes a user and, through the foreign key, its refresh token records.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(usersTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) update(ctx context.Context, id string, values map[string]any, op string) error {
	values["updated_at"] = squirrel.Expr("NOW()")

	stmt, args, err := r.builder.Update(usersTable).
		SetMap(values).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", op, err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedValue(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Avatar,
		&role,
		&user.IsVerifiedEmail,
		&user.IsActive,
		&user.OTPHash,
		&user.OTPExpiresAt,
		&user.PasswordChangedAt,
		&user.PasswordResetTokenHash,
		&user.PasswordResetExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

var _ port.UserAdminRepository = (*UserRepository)(nil)
