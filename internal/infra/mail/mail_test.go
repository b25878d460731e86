package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

type recordingMailer struct {
	sent []domain.MailMessage
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg domain.MailMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func newTestDispatcher(t *testing.T, mailer *recordingMailer, now time.Time) *Dispatcher {
	t.Helper()
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return NewDispatcher(renderer, mailer, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })
}

func TestDispatcherVerificationOTP(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mailer := &recordingMailer{}
	d := newTestDispatcher(t, mailer, now)

	err := d.SendVerificationOTP(context.Background(), domain.VerificationOTPNotification{
		UserID:    "u-1",
		Username:  "alice",
		Email:     "alice@x.com",
		Code:      "482913",
		ExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("SendVerificationOTP: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d messages", len(mailer.sent))
	}

	msg := mailer.sent[0]
	if msg.Subject != "Verification OTP" || msg.To != "alice@x.com" || msg.Kind != domain.MailKindVerificationOTP {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	if msg.ID == "" || !msg.CreatedAt.Equal(now) {
		t.Fatalf("id/created_at not stamped: %q %v", msg.ID, msg.CreatedAt)
	}
	for _, body := range []string{msg.HTML, msg.Text} {
		if !strings.Contains(body, "482913") || !strings.Contains(body, "alice") || !strings.Contains(body, "10 minutes") {
			t.Fatalf("body missing fields: %s", body)
		}
	}
}

func TestDispatcherPasswordResetEscapesHTML(t *testing.T) {
	now := time.Now()
	mailer := &recordingMailer{}
	d := newTestDispatcher(t, mailer, now)

	err := d.SendPasswordReset(context.Background(), domain.PasswordResetNotification{
		Username:  "<b>eve</b>",
		Email:     "eve@x.com",
		ResetURL:  "https://shop.example/auth/new-password?token=abc",
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SendPasswordReset: %v", err)
	}

	msg := mailer.sent[0]
	if msg.Subject != "Reset Password" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if strings.Contains(msg.HTML, "<b>eve</b>") {
		t.Fatal("username must be escaped in html body")
	}
	if !strings.Contains(msg.Text, "https://shop.example/auth/new-password?token=abc") {
		t.Fatalf("text body missing link: %s", msg.Text)
	}
	if !strings.Contains(msg.Text, "1 hour") {
		t.Fatalf("text body missing expiry: %s", msg.Text)
	}
}

func TestDispatcherPropagatesTransportError(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}
	var observed []error
	d := newTestDispatcher(t, mailer, time.Now()).WithObserver(func(kind domain.MailKind, err error) {
		if kind != domain.MailKindVerificationOTP {
			t.Errorf("unexpected kind %s", kind)
		}
		observed = append(observed, err)
	})

	err := d.SendVerificationOTP(context.Background(), domain.VerificationOTPNotification{Email: "a@b.co"})
	if err == nil || !strings.Contains(err.Error(), "relay down") {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if len(observed) != 1 || observed[0] == nil {
		t.Fatalf("observer not called with error: %v", observed)
	}
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("noreply@shop.example", domain.MailMessage{
		ID:      "mail-1",
		To:      "alice@x.com",
		Subject: "Verification OTP",
		HTML:    "<p>123456</p>",
		Text:    "123456",
	})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"noreply@shop.example", "alice@x.com", "Verification OTP", "text/html", "text/plain", "mail-1"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}

	if _, err := buildMessage("not an address", domain.MailMessage{To: "alice@x.com"}); err == nil {
		t.Fatal("expected invalid sender error")
	}
}

func TestLogMailerMasksRecipient(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewLogMailer(zap.New(core))

	if err := m.Send(context.Background(), domain.MailMessage{To: "alice@x.com", Subject: "Reset Password"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries := logs.FilterMessage("Stub mail sent").All()
	if len(entries) != 1 {
		t.Fatalf("expected one info entry, got %d", len(entries))
	}
	if to := entries[0].ContextMap()["to"]; to != "ali***@x.com" {
		t.Fatalf("recipient not masked: %v", to)
	}
}
