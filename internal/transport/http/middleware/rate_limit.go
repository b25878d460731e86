package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/port"
)

const (
	rateLimitProblemType  = "https://storefront.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Too Many Requests"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter enforces sliding-window rules against a shared store.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// windowState is one rule's view of the window before the current request.
type windowState struct {
	rule  RateLimitRule
	key   string
	used  int
	reset time.Time
}

func (w windowState) exhausted() bool {
	return w.used >= w.rule.Limit
}

// remaining counts what is left once the current request is recorded.
func (w windowState) remaining() int {
	return max(w.rule.Limit-w.used-1, 0)
}

func (w windowState) retryAfter(now time.Time) int {
	return max(int(math.Ceil(w.reset.Sub(now).Seconds())), 0)
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// WindowLimits is the short and long window pair applied to one route.
type WindowLimits struct {
	Short       int
	Long        int
	ShortWindow time.Duration
	LongWindow  time.Duration
}

// RouteRules builds the short and long per-client-IP rules for route.
func RouteRules(route string, limits WindowLimits) []RateLimitRule {
	byIP := ClientIPIdentifier()
	return []RateLimitRule{
		{Name: route + ":short", Limit: limits.Short, Window: limits.ShortWindow, Identifier: byIP},
		{Name: route + ":long", Limit: limits.Long, Window: limits.LongWindow, Identifier: byIP},
	}
}

// RateLimit returns a Gin middleware enforcing every rule. All windows are
// checked before any attempt is recorded; a rejected request records nothing.
// Store failures fail open.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		states := rl.inspect(c, active, now)
		if len(states) == 0 {
			c.Next()
			return
		}

		if blocked, ok := longestBlock(states, now); ok {
			rl.setHeaders(c, blocked, now, true)
			rl.reject(c, blocked, now)
			return
		}

		for _, state := range states {
			if err := rl.store.RecordAttempt(c.Request.Context(), state.key, now); err != nil {
				rl.logger.Warn("rate limit record failed", zap.String("rule", state.rule.Name), zap.Error(err))
			}
		}
		rl.setHeaders(c, tightest(states), now, false)

		c.Next()
	}
}

// inspect loads the window state of every rule that applies to the request.
func (rl *RateLimiter) inspect(c *gin.Context, rules []RateLimitRule, now time.Time) []windowState {
	states := make([]windowState, 0, len(rules))

	for _, rule := range rules {
		identifier, ok := rule.Identifier(c)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s:%s", rule.Name, identifier)

		state, err := rl.load(c, rule, key, now)
		if err != nil {
			rl.logger.Warn("rate limit check failed",
				zap.String("rule", rule.Name),
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			continue
		}
		states = append(states, state)
	}
	return states
}

func (rl *RateLimiter) load(c *gin.Context, rule RateLimitRule, key string, now time.Time) (windowState, error) {
	ctx := c.Request.Context()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return windowState{}, err
	}
	used, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}

	state := windowState{rule: rule, key: key, used: used, reset: now.Add(rule.Window)}
	if found {
		state.reset = oldest.Add(rule.Window)
	}
	return state, nil
}

// longestBlock picks the exhausted window that frees up last.
func longestBlock(states []windowState, now time.Time) (windowState, bool) {
	var (
		blocked windowState
		found   bool
	)
	for _, s := range states {
		if !s.exhausted() {
			continue
		}
		if !found || s.retryAfter(now) > blocked.retryAfter(now) {
			blocked, found = s, true
		}
	}
	return blocked, found
}

// tightest picks the window with the least room left, earliest reset first.
func tightest(states []windowState) windowState {
	best := states[0]
	for _, s := range states[1:] {
		if s.remaining() < best.remaining() ||
			(s.remaining() == best.remaining() && s.reset.Before(best.reset)) {
			best = s
		}
	}
	return best
}

func (rl *RateLimiter) setHeaders(c *gin.Context, s windowState, now time.Time, blocked bool) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(s.rule.Limit))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(s.reset.Unix(), 10))
	if blocked {
		h.Set("X-RateLimit-Remaining", "0")
		h.Set("Retry-After", strconv.Itoa(s.retryAfter(now)))
		return
	}
	h.Set("X-RateLimit-Remaining", strconv.Itoa(s.remaining()))
}

func (rl *RateLimiter) reject(c *gin.Context, s windowState, now time.Time) {
	retry := s.retryAfter(now)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	rl.logger.Info("rate limit exceeded",
		zap.String("rule", s.rule.Name),
		zap.String("path", instance),
		zap.Int("retry_after", retry),
	)

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", retry),
		Instance:   instance,
		RetryAfter: retry,
		TraceID:    GetTraceID(c),
	})
}
