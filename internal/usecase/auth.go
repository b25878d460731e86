package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/logger"
	"github.com/arklim/storefront-auth/internal/infra/security"
	"github.com/arklim/storefront-auth/internal/repository"
)

const (
	otpLength            = 6
	resetTokenBytes      = 32
	defaultOTPTTL        = 10 * time.Minute
	defaultResetTokenTTL = 10 * time.Minute
	defaultMailTimeout   = 30 * time.Second
)

var emailShape = regexp.MustCompile(`\S+@\S+\.\S+`)

// AuthConfig carries the tunables of the auth flows.
type AuthConfig struct {
	OTPTTL        time.Duration
	ResetTokenTTL time.Duration
	// FrontURL is the storefront origin used to build password reset links.
	FrontURL    string
	MailTimeout time.Duration
}

// AuthService runs registration, verification, login, refresh rotation and
// password reset.
type AuthService struct {
	users         port.UserRepository
	refreshTokens port.RefreshTokenStore
	hasher        port.CredentialHasher
	tokens        port.TokenIssuer
	notifier      port.Notifier
	passwords     port.PasswordValidator
	cfg           AuthConfig
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
	generateOTP   func() (string, error)
	mail          sync.WaitGroup
}

// NewAuthService wires the auth flows. notifier and passwords may be nil.
func NewAuthService(
	users port.UserRepository,
	refreshTokens port.RefreshTokenStore,
	hasher port.CredentialHasher,
	tokens port.TokenIssuer,
	notifier port.Notifier,
	passwords port.PasswordValidator,
	cfg AuthConfig,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = defaultResetTokenTTL
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = defaultMailTimeout
	}
	cfg.FrontURL = strings.TrimRight(cfg.FrontURL, "/")

	return &AuthService{
		users:         users,
		refreshTokens: refreshTokens,
		hasher:        hasher,
		tokens:        tokens,
		notifier:      notifier,
		passwords:     passwords,
		cfg:           cfg,
		logger:        log,
		tracer:        otel.Tracer("github.com/arklim/storefront-auth/internal/usecase"),
		now:           time.Now,
		generateOTP:   func() (string, error) { return security.GenerateNumericCode(otpLength) },
	}
}

// WithClock overrides the time source (primarily for testing).
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithOTPGenerator overrides OTP generation (primarily for testing).
func (s *AuthService) WithOTPGenerator(gen func() (string, error)) *AuthService {
	if gen != nil {
		s.generateOTP = gen
	}
	return s
}

// Wait blocks until in-flight mail dispatches finish.
func (s *AuthService) Wait() {
	s.mail.Wait()
}

// ValidateLocal resolves credential as an email or username and checks the password.
func (s *AuthService) ValidateLocal(ctx context.Context, credential, password string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ValidateLocal")
	defer span.End()

	credential = strings.TrimSpace(credential)
	if credential == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user *domain.User
		err  error
	)
	if emailShape.MatchString(credential) {
		user, err = s.users.GetByEmail(ctx, credential)
	} else {
		user, err = s.users.GetByUsername(ctx, credential)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login issues a fresh token pair for an already validated principal.
func (s *AuthService) Login(ctx context.Context, principal domain.Principal) (domain.TokenPair, error) {
	_, span := s.tracer.Start(ctx, "AuthService.Login", trace.WithAttributes(attribute.String("user.id", principal.UserID)))
	defer span.End()

	if principal.UserID == "" {
		return domain.TokenPair{}, errors.New("login: principal not set")
	}
	return s.issuePair(principal)
}

// ValidateAccessToken verifies a bearer token and returns its principal.
func (s *AuthService) ValidateAccessToken(raw string) (domain.Principal, error) {
	principal, err := s.tokens.ParseAccessToken(raw)
	if err != nil {
		if errors.Is(err, security.ErrInvalidPayload) {
			return domain.Principal{}, ErrInvalidJWTPayload
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return principal, nil
}

// ValidateRefreshToken verifies a refresh token and returns its principal and expiry.
func (s *AuthService) ValidateRefreshToken(raw string) (domain.RefreshClaims, error) {
	claims, err := s.tokens.ParseRefreshToken(raw)
	if err != nil {
		if errors.Is(err, security.ErrInvalidPayload) {
			return domain.RefreshClaims{}, ErrInvalidRefreshPayload
		}
		return domain.RefreshClaims{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims, nil
}

// RefreshTokens rotates a validated refresh token. A token whose fingerprint
// is already recorded for the user has been rotated before and is rejected.
func (s *AuthService) RefreshTokens(ctx context.Context, raw string, claims domain.RefreshClaims) (domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.RefreshTokens", trace.WithAttributes(attribute.String("user.id", claims.UserID)))
	defer span.End()

	if raw == "" || claims.UserID == "" {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	fingerprint := s.hasher.Fingerprint(raw)

	seen, err := s.refreshTokens.Exists(ctx, fingerprint, claims.UserID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("check refresh token: %w", err)
	}
	if seen {
		s.logger.Warn("refresh token reuse detected",
			zap.String("user_id", claims.UserID),
			zap.String("token", logger.MaskToken(raw)),
		)
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	now := s.now().UTC()
	record := domain.RefreshTokenRecord{
		ID:        uuid.NewString(),
		UserID:    claims.UserID,
		TokenHash: fingerprint,
		ExpiresAt: claims.ExpiresAt,
		CreatedAt: now,
	}
	if err := s.refreshTokens.Append(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("concurrent refresh rotation rejected", zap.String("user_id", claims.UserID))
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, fmt.Errorf("record refresh token: %w", err)
	}

	return s.issuePair(claims.Principal)
}

// Me returns the user behind an access token.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// IsEmailTaken reports whether any account, verified or not, holds the email.
func (s *AuthService) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	return s.exists(s.users.GetByEmail(ctx, email))
}

// IsUsernameTaken reports whether any account, verified or not, holds the username.
func (s *AuthService) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	return s.exists(s.users.GetByUsername(ctx, strings.TrimSpace(username)))
}

func (s *AuthService) exists(_ *domain.User, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("lookup user: %w", err)
}

func (s *AuthService) issuePair(principal domain.Principal) (domain.TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.tokens.IssueAccessToken(principal, now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(principal, now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// dispatch sends mail off the request path. Failures are logged, never returned.
func (s *AuthService) dispatch(ctx context.Context, kind domain.MailKind, recipient string, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}

	s.mail.Add(1)
	go func() {
		defer s.mail.Done()

		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MailTimeout)
		defer cancel()

		if err := send(mailCtx); err != nil {
			s.logger.Warn("mail dispatch failed",
				zap.String("kind", string(kind)),
				zap.String("recipient", logger.MaskEmail(recipient)),
				zap.Error(err),
			)
		}
	}()
}
