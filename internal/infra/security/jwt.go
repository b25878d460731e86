package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
)

var (
	// ErrInvalidToken indicates the token failed signature or structural checks.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpiredToken indicates the token is past its exp claim.
	ErrExpiredToken = errors.New("jwt: token expired")
	// ErrInvalidPayload indicates a well-signed token is missing its subject or role.
	ErrInvalidPayload = errors.New("jwt: invalid payload")
)

// Claims is the payload carried by both access and refresh tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds signing secrets and lifetimes.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// JWTManager signs and verifies HS256 access and refresh tokens with separate secrets.
type JWTManager struct {
	cfg JWTConfig
	now func() time.Time
}

// NewJWTManager validates cfg and constructs a manager.
func NewJWTManager(cfg JWTConfig) (*JWTManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("jwt: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &JWTManager{cfg: cfg, now: time.Now}, nil
}

// WithClock overrides the clock used when validating exp (primarily for testing).
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

// RefreshTTL exposes the configured refresh token lifetime.
func (m *JWTManager) RefreshTTL() time.Duration {
	return m.cfg.RefreshTTL
}

// IssueAccessToken signs a short-lived access token for principal.
func (m *JWTManager) IssueAccessToken(principal domain.Principal, now time.Time) (string, time.Time, error) {
	return m.sign(principal, now, m.cfg.AccessTTL, m.cfg.AccessSecret)
}

// IssueRefreshToken signs a long-lived refresh token for principal.
func (m *JWTManager) IssueRefreshToken(principal domain.Principal, now time.Time) (string, time.Time, error) {
	return m.sign(principal, now, m.cfg.RefreshTTL, m.cfg.RefreshSecret)
}

// ParseAccessToken verifies raw with the access secret.
func (m *JWTManager) ParseAccessToken(raw string) (domain.Principal, error) {
	claims, err := m.parse(raw, m.cfg.AccessSecret)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: claims.Subject, Role: domain.Role(claims.Role)}, nil
}

// ParseRefreshToken verifies raw with the refresh secret and returns its expiry.
func (m *JWTManager) ParseRefreshToken(raw string) (domain.RefreshClaims, error) {
	claims, err := m.parse(raw, m.cfg.RefreshSecret)
	if err != nil {
		return domain.RefreshClaims{}, err
	}
	return domain.RefreshClaims{
		Principal: domain.Principal{UserID: claims.Subject, Role: domain.Role(claims.Role)},
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (m *JWTManager) sign(principal domain.Principal, now time.Time, ttl time.Duration, secret string) (string, time.Time, error) {
	if principal.UserID == "" || principal.Role == "" {
		return "", time.Time{}, ErrInvalidPayload
	}

	issuedAt := now.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	claims := Claims{
		Role: string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal.UserID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *JWTManager) parse(raw, secret string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.Role == "" {
		return nil, ErrInvalidPayload
	}
	if claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

var _ port.TokenIssuer = (*JWTManager)(nil)
