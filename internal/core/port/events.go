package port

import (
	"context"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

// Mailer delivers rendered email messages.
type Mailer interface {
	Send(ctx context.Context, msg domain.MailMessage) error
}

// Notifier renders and sends the account emails triggered by auth flows.
type Notifier interface {
	SendVerificationOTP(ctx context.Context, n domain.VerificationOTPNotification) error
	SendPasswordReset(ctx context.Context, n domain.PasswordResetNotification) error
}

// FileStore persists an uploaded file and returns where it can be fetched.
type FileStore interface {
	Store(ctx context.Context, file domain.UploadedFile) (domain.StoredFile, error)
}
