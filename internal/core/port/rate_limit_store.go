package port

import (
	"context"
	"time"
)

// RateLimitStore keeps per-identifier request timestamps for sliding-window limits.
// Identifiers are "<rule>:<client>" so the short and long windows of a route count separately.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
