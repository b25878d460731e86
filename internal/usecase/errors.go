package usecase

import "errors"

// Kind classifies usecase failures so transports can map them without
// knowing every sentinel.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindBadInput
	KindNotFound
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindBadInput:
		return "bad_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a user-visible failure. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string

	sentinel *Error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel a specialised error was derived from.
func (e *Error) Unwrap() error {
	if e.sentinel == nil {
		return nil
	}
	return e.sentinel
}

// withMessage derives an error of the same kind with a more specific message.
// errors.Is still matches the original sentinel.
func (e *Error) withMessage(message string) *Error {
	return &Error{Kind: e.Kind, Message: message, sentinel: e}
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of err, or "" for internal failures.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

var (
	// ErrEmailAndUsernameTaken indicates both identifiers belong to verified accounts.
	ErrEmailAndUsernameTaken = newError(KindConflict, "Email and username already in use, Please login")
	// ErrEmailTaken indicates the email belongs to a verified account.
	ErrEmailTaken = newError(KindConflict, "Email already in use, Please login")
	// ErrUsernameTaken indicates the username belongs to a verified account.
	ErrUsernameTaken = newError(KindConflict, "username already in use, Please choose a different username or if it is yours, login with your credentials.")
	// ErrUsernameBoundToOtherEmail indicates an unverified username registered under another email.
	ErrUsernameBoundToOtherEmail = newError(KindConflict, "This username belongs to another email.please choose a different username or if it is yours enter the correct email")

	ErrOTPInvalidOrExpired = newError(KindBadInput, "Email is invalid or OTP is expired")
	ErrAlreadyVerified     = newError(KindBadInput, "Email is already verified")
	ErrOTPIncorrect        = newError(KindBadInput, "OTP is incorrect")
	// ErrWeakPassword is the fallback for password policy failures; see weakPassword.
	ErrWeakPassword = newError(KindBadInput, "password too weak")

	ErrInvalidCredentials     = newError(KindUnauthorized, "Invalid credentials")
	ErrInvalidRefreshToken    = newError(KindUnauthorized, "Invalid refresh token.")
	ErrInvalidJWTPayload      = newError(KindUnauthorized, "Invalid jwt payload.")
	ErrInvalidRefreshPayload  = newError(KindUnauthorized, "Invalid refresh jwt payload.")
	ErrUnauthorized           = newError(KindUnauthorized, "Unauthorized")
	ErrResetTokenInvalid      = newError(KindBadInput, "Token is invalid or expired")
	ErrNoUserWithEmail        = newError(KindNotFound, "There is no user with this email address")
	ErrUserNotFound           = newError(KindNotFound, "User not found")
	ErrAlreadyPromoted        = newError(KindBadInput, "This user is already promoted.")
	ErrNotAnAdmin             = newError(KindBadInput, "This User is not an admin.")
	ErrProfileUsernameTaken   = newError(KindConflict, "Username is already taken.")
	ErrProfileValueTooLong    = newError(KindBadInput, "Profile value is too long.")
	ErrNotAllowedToUpdateUser = newError(KindForbidden, "You are not authorized to update this user")
	ErrFileTypeMismatch       = newError(KindBadInput, "File type is not matching: image")
	ErrFileTooLarge           = newError(KindBadInput, "File too large")
	ErrUnknownFileStore       = newError(KindNotFound, "Upload target not configured")
)
