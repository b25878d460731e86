package port

import (
	"context"
	"time"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

// RefreshTokenStore records fingerprints of refresh tokens that have been rotated away.
type RefreshTokenStore interface {
	Exists(ctx context.Context, tokenHash, userID string) (bool, error)
	// Append returns repository.ErrConflict when the fingerprint is already recorded for the user.
	Append(ctx context.Context, record domain.RefreshTokenRecord) error
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}
