package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/arklim/storefront-auth/internal/core/port"
)

// Hasher hashes passwords and OTP codes with Argon2id and fingerprints tokens with SHA-256.
// Digests written by bcrypt (accounts imported from the previous store) still verify.
type Hasher struct {
	argon          Argon2Config
	fingerprintKey []byte
}

// NewHasher validates the Argon2 parameters and builds a Hasher.
// When fingerprintKey is non-empty, fingerprints are HMAC-SHA-256 keyed with it.
func NewHasher(cfg Argon2Config, fingerprintKey string) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Hasher{argon: cfg}
	if fingerprintKey != "" {
		h.fingerprintKey = []byte(fingerprintKey)
	}
	return h, nil
}

// Hash returns a salted Argon2id digest of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("hash: empty secret")
	}
	return encodeArgon2(secret, h.argon)
}

// Verify compares candidate against digest in constant time.
func (h *Hasher) Verify(candidate, digest string) (bool, error) {
	if candidate == "" || digest == "" {
		return false, nil
	}

	if isBcryptDigest(digest) {
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("bcrypt: %w", err)
		}
	}

	return verifyArgon2(candidate, digest)
}

// Fingerprint returns a deterministic hex digest of token.
func (h *Hasher) Fingerprint(token string) string {
	if len(h.fingerprintKey) == 0 {
		return HashToken(token)
	}
	mac := hmac.New(sha256.New, h.fingerprintKey)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// RandomToken returns byteLength random bytes encoded as hex.
func (h *Hasher) RandomToken(byteLength int) (string, error) {
	return GenerateHexToken(byteLength)
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

var _ port.CredentialHasher = (*Hasher)(nil)
