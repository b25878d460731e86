package domain

import "time"

// RefreshTokenRecord marks a refresh token as already rotated away.
// Only the token fingerprint is stored.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the record has elapsed its validity window.
func (r RefreshTokenRecord) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}

// Principal is the authenticated subject carried by access and refresh tokens.
type Principal struct {
	UserID string
	Role   Role
}

// RefreshClaims is the verified content of a presented refresh token.
type RefreshClaims struct {
	Principal
	ExpiresAt time.Time
}

// TokenPair groups a freshly signed access token with its refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
