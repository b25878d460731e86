package domain

import (
	"strings"
	"time"
)

// Role enumerates the authorization levels a user can hold.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role grants administrative access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID                     string
	Username               string
	Email                  string
	PasswordHash           string
	FullName               string
	Avatar                 *string
	Role                   Role
	IsVerifiedEmail        bool
	IsActive               bool
	OTPHash                *string
	OTPExpiresAt           *time.Time
	PasswordChangedAt      *time.Time
	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NormalizeEmail lower-cases and trims an email address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetOTP stores the OTP digest together with its expiry.
func (u *User) SetOTP(hash string, expiresAt time.Time) {
	h := hash
	exp := expiresAt
	u.OTPHash = &h
	u.OTPExpiresAt = &exp
}

// ClearOTP removes both OTP fields.
func (u *User) ClearOTP() {
	u.OTPHash = nil
	u.OTPExpiresAt = nil
}

// OTPActive reports whether an unexpired OTP is pending at the given instant.
func (u User) OTPActive(at time.Time) bool {
	return u.OTPHash != nil && u.OTPExpiresAt != nil && u.OTPExpiresAt.After(at)
}

// MarkVerified flips the account to verified and active.
func (u *User) MarkVerified() {
	u.IsVerifiedEmail = true
	u.IsActive = true
}

// SetPasswordReset stores the reset token digest and its expiry.
func (u *User) SetPasswordReset(hash string, expiresAt time.Time) {
	h := hash
	exp := expiresAt
	u.PasswordResetTokenHash = &h
	u.PasswordResetExpiresAt = &exp
}

// ClearPasswordReset removes both reset fields.
func (u *User) ClearPasswordReset() {
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
}

// ProfileUpdate carries the optional fields a user may change on their profile.
type ProfileUpdate struct {
	FullName *string
	Username *string
	Avatar   *string
}

// Empty reports whether no field is set.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Username == nil && p.Avatar == nil
}

// SortOrder is the direction of a list ordering.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	// MaxListPage bounds Page so Offset stays far from integer overflow.
	MaxListPage      = 1_000_000
	DefaultSortBy    = "created_at"
)

var sortableUserColumns = map[string]string{
	"created_at": "created_at",
	"createdAt":  "created_at",
	"updated_at": "updated_at",
	"updatedAt":  "updated_at",
	"username":   "username",
	"email":      "email",
	"role":       "role",
	"full_name":  "full_name",
	"fullName":   "full_name",
}

// ListQuery describes pagination and ordering for list endpoints.
type ListQuery struct {
	Limit     int
	Page      int
	SortBy    string
	SortOrder SortOrder
}

// Normalize applies defaults and clamps values to supported ranges.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Page > MaxListPage {
		q.Page = MaxListPage
	}
	col, ok := sortableUserColumns[q.SortBy]
	if !ok {
		col = DefaultSortBy
	}
	q.SortBy = col
	if q.SortOrder != SortAsc {
		q.SortOrder = SortDesc
	}
	return q
}

// Offset returns the row offset for the requested page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Page is a window of results together with the total count.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}
