package domain

import "time"

// MailKind identifies the purpose of an outbound message.
type MailKind string

const (
	MailKindVerificationOTP MailKind = "verification_otp"
	MailKindPasswordReset   MailKind = "password_reset"
)

// MailMessage is a rendered email ready for delivery.
type MailMessage struct {
	ID        string
	Kind      MailKind
	UserID    string
	To        string
	Subject   string
	HTML      string
	Text      string
	CreatedAt time.Time
}

// UploadedFile describes a file received from a client.
type UploadedFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// StoredFile is the public location of an uploaded file.
type StoredFile struct {
	URL string
	Key string
}

// VerificationOTPNotification carries the raw OTP to the mail renderer. It is never persisted.
type VerificationOTPNotification struct {
	UserID    string
	Username  string
	Email     string
	Code      string
	ExpiresAt time.Time
}

// PasswordResetNotification carries the reset link embedding the raw token.
type PasswordResetNotification struct {
	UserID    string
	Username  string
	Email     string
	ResetURL  string
	ExpiresAt time.Time
}
