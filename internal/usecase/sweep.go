package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/port"
)

// SweepService deletes refresh token records that can no longer be presented.
type SweepService struct {
	store  port.RefreshTokenStore
	logger *zap.Logger
	now    func() time.Time
}

// NewSweepService constructs a SweepService.
func NewSweepService(store port.RefreshTokenStore, log *zap.Logger) *SweepService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SweepService{store: store, logger: log, now: time.Now}
}

// WithClock overrides the time source (primarily for testing).
func (s *SweepService) WithClock(now func() time.Time) *SweepService {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep removes every record with expires_at <= now. Running it twice is harmless.
func (s *SweepService) Sweep(ctx context.Context) (int64, error) {
	now := s.now().UTC()

	deleted, err := s.store.DeleteExpiredBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired refresh tokens: %w", err)
	}

	s.logger.Info("expired refresh tokens swept", zap.Int64("deleted", deleted), zap.Time("cutoff", now))
	return deleted, nil
}
