package port

import (
	"time"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

// CredentialHasher hashes secrets and tokens.
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(candidate, digest string) (bool, error)
	Fingerprint(token string) string
	RandomToken(byteLength int) (string, error)
}

// PasswordValidator enforces password strength requirements.
type PasswordValidator interface {
	Validate(password string) error
}

// PolicyViolation is a PasswordValidator error whose message may be shown to clients.
type PolicyViolation interface {
	error
	PolicyMessage() string
}

// TokenIssuer signs and verifies access and refresh tokens.
type TokenIssuer interface {
	IssueAccessToken(principal domain.Principal, now time.Time) (string, time.Time, error)
	IssueRefreshToken(principal domain.Principal, now time.Time) (string, time.Time, error)
	ParseAccessToken(raw string) (domain.Principal, error)
	ParseRefreshToken(raw string) (domain.RefreshClaims, error)
}
