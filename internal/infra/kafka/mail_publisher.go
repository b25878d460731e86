package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/config"
	"github.com/arklim/storefront-auth/internal/infra/logger"
)

const schemaVersion = "1.0"

// DefaultMailTopic is used when kafka.mail_topic is empty.
const DefaultMailTopic = "mail.outbound"

// MailPublisher implements port.Mailer by enqueueing messages for an external mail worker.
type MailPublisher struct {
	producer *Producer
	topic    string
	appCfg   config.AppSettings
	logger   *zap.Logger
}

// NewMailPublisher constructs a Kafka-backed mail outbox.
func NewMailPublisher(producer *Producer, topic string, appCfg config.AppSettings, log *zap.Logger) *MailPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	if topic == "" {
		topic = DefaultMailTopic
	}
	return &MailPublisher{producer: producer, topic: producer.TopicName(topic), appCfg: appCfg, logger: log}
}

type mailEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   mailPayload       `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type mailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Send enqueues msg keyed by recipient so one user's mail stays ordered.
func (p *MailPublisher) Send(ctx context.Context, msg domain.MailMessage) error {
	ts := msg.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(mailEnvelope{
		EventID:   msg.ID,
		EventType: "mail." + string(msg.Kind),
		UserID:    msg.UserID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload: mailPayload{
			To:      msg.To,
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
		},
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal mail envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.To),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Input() <- message:
		p.logger.Debug("mail enqueued",
			zap.String("topic", p.topic),
			zap.String("mail_id", msg.ID),
			zap.String("to", logger.MaskEmail(msg.To)),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.Mailer = (*MailPublisher)(nil)
