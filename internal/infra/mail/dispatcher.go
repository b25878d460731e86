package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/logger"
)

// Dispatcher implements port.Notifier by rendering templates and handing
// the result to a port.Mailer.
type Dispatcher struct {
	renderer *Renderer
	mailer   port.Mailer
	logger   *zap.Logger
	now      func() time.Time
	observe  func(kind domain.MailKind, err error)
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(renderer *Renderer, mailer port.Mailer, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{renderer: renderer, mailer: mailer, logger: log, now: time.Now}
}

// WithClock overrides the time source (primarily for testing).
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// WithObserver reports every delivery attempt, e.g. to metrics.
func (d *Dispatcher) WithObserver(observe func(kind domain.MailKind, err error)) *Dispatcher {
	d.observe = observe
	return d
}

// SendVerificationOTP renders and sends the verification code email.
func (d *Dispatcher) SendVerificationOTP(ctx context.Context, n domain.VerificationOTPNotification) error {
	msg, err := d.renderer.VerificationOTP(n, d.now())
	if err != nil {
		return err
	}
	return d.send(ctx, msg)
}

// SendPasswordReset renders and sends the reset link email.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, n domain.PasswordResetNotification) error {
	msg, err := d.renderer.PasswordReset(n, d.now())
	if err != nil {
		return err
	}
	return d.send(ctx, msg)
}

func (d *Dispatcher) send(ctx context.Context, msg domain.MailMessage) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = d.now().UTC()

	err := d.mailer.Send(ctx, msg)
	if d.observe != nil {
		d.observe(msg.Kind, err)
	}
	if err != nil {
		return fmt.Errorf("send %s mail: %w", msg.Kind, err)
	}

	d.logger.Debug("mail handed to transport",
		zap.String("mail_id", msg.ID),
		zap.String("kind", string(msg.Kind)),
		zap.String("to", logger.MaskEmail(msg.To)),
	)
	return nil
}

var _ port.Notifier = (*Dispatcher)(nil)
