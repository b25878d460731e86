package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	subjectVerificationOTP = "Verification OTP"
	subjectPasswordReset   = "Reset Password"
)

// Renderer turns notifications into HTML and plain-text bodies.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{html: html, text: text}, nil
}

type otpView struct {
	Username  string
	Code      string
	ExpiresIn string
}

type resetView struct {
	Username  string
	ResetURL  string
	ExpiresIn string
}

// VerificationOTP renders the OTP email.
func (r *Renderer) VerificationOTP(n domain.VerificationOTPNotification, now time.Time) (domain.MailMessage, error) {
	view := otpView{Username: n.Username, Code: n.Code, ExpiresIn: humanize(n.ExpiresAt.Sub(now))}
	return r.render("verification_otp", view, domain.MailMessage{
		Kind:    domain.MailKindVerificationOTP,
		UserID:  n.UserID,
		To:      n.Email,
		Subject: subjectVerificationOTP,
	})
}

// PasswordReset renders the reset-link email.
func (r *Renderer) PasswordReset(n domain.PasswordResetNotification, now time.Time) (domain.MailMessage, error) {
	view := resetView{Username: n.Username, ResetURL: n.ResetURL, ExpiresIn: humanize(n.ExpiresAt.Sub(now))}
	return r.render("password_reset", view, domain.MailMessage{
		Kind:    domain.MailKindPasswordReset,
		UserID:  n.UserID,
		To:      n.Email,
		Subject: subjectPasswordReset,
	})
}

func (r *Renderer) render(name string, view any, msg domain.MailMessage) (domain.MailMessage, error) {
	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, name+".html.tmpl", view); err != nil {
		return msg, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&text, name+".txt.tmpl", view); err != nil {
		return msg, fmt.Errorf("render %s text: %w", name, err)
	}
	msg.HTML = html.String()
	msg.Text = text.String()
	return msg, nil
}

func humanize(d time.Duration) string {
	d = d.Round(time.Minute)
	switch {
	case d <= time.Minute:
		return "1 minute"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d == time.Hour:
		return "1 hour"
	default:
		return d.String()
	}
}
