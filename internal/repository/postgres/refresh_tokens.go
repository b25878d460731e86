package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/repository"
)

const refreshTokenTable = "shop.refresh_token_records"

// RefreshTokenRepository stores fingerprints of rotated-away refresh tokens.
type RefreshTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRefreshTokenRepository constructs a repository backed by any pgExecutor.
func NewRefreshTokenRepository(exec pgExecutor) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Exists reports whether the fingerprint has already been recorded for the user.
func (r *RefreshTokenRepository) Exists(ctx context.Context, tokenHash, userID string) (bool, error) {
	sub, args, err := r.builder.Select("1").
		From(refreshTokenTable).
		Where(squirrel.Eq{"token_hash": tokenHash, "user_id": userID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build refresh token lookup sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, "SELECT EXISTS ("+sub+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup refresh token: %w", err)
	}
	return exists, nil
}

// Append records a fingerprint. Losing a race on the (user_id, token_hash)
// unique index yields repository.ErrConflict.
func (r *RefreshTokenRepository) Append(ctx context.Context, record domain.RefreshTokenRecord) error {
	stmt, args, err := r.builder.Insert(refreshTokenTable).
		Columns("id", "user_id", "token_hash", "expires_at", "created_at").
		Values(record.ID, record.UserID, record.TokenHash, record.ExpiresAt, record.CreatedAt).
		Suffix("ON CONFLICT (user_id, token_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("insert refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert refresh token: %w", repository.ErrConflict)
	}
	return nil
}

// DeleteExpiredBefore removes every record whose expiry is at or before now.
func (r *RefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(refreshTokenTable).
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired refresh tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ port.RefreshTokenStore = (*RefreshTokenRepository)(nil)
