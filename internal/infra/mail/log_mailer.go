package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/logger"
)

// LogMailer writes messages to the log instead of delivering them. Useful for development environments.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{logger: log}
}

// Send logs the envelope at info and the plain-text body at debug.
func (m *LogMailer) Send(_ context.Context, msg domain.MailMessage) error {
	m.logger.Info("Stub mail sent",
		zap.String("mail_id", msg.ID),
		zap.String("kind", string(msg.Kind)),
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
	)
	m.logger.Debug("Stub mail body", zap.String("mail_id", msg.ID), zap.String("text", msg.Text))
	return nil
}

var _ port.Mailer = (*LogMailer)(nil)
