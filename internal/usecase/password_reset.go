package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/infra/logger"
	"github.com/arklim/storefront-auth/internal/repository"
)

// ResetLinkSentMessage is returned once a reset link has been issued.
const ResetLinkSentMessage = "Reset url has been sent to your email"

// ForgetPassword stores a reset token digest on the user and mails the raw token.
func (s *AuthService) ForgetPassword(ctx context.Context, email string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ForgetPassword")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoUserWithEmail
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	raw, err := s.hasher.RandomToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.ResetTokenTTL)
	user.SetPasswordReset(s.hasher.Fingerprint(raw), expiresAt)
	user.UpdatedAt = now

	if err := s.users.Save(ctx, *user); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	s.logger.Info("password reset requested",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	notification := domain.PasswordResetNotification{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		ResetURL:  s.cfg.FrontURL + "/auth/new-password?token=" + url.QueryEscape(raw),
		ExpiresAt: expiresAt,
	}
	s.dispatch(ctx, domain.MailKindPasswordReset, user.Email, func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, notification)
	})

	return ResetLinkSentMessage, nil
}

// ResetPassword replaces the password of the user holding an unexpired reset
// token and signs them in.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, password string) (domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	if rawToken == "" {
		return domain.TokenPair{}, ErrResetTokenInvalid
	}
	if s.passwords != nil {
		if err := s.passwords.Validate(password); err != nil {
			return domain.TokenPair{}, weakPassword(err)
		}
	}

	now := s.now().UTC()
	user, err := s.users.GetByResetTokenHash(ctx, s.hasher.Fingerprint(rawToken), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrResetTokenInvalid
		}
		return domain.TokenPair{}, fmt.Errorf("lookup reset token: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = digest
	user.ClearPasswordReset()
	changedAt := now
	user.PasswordChangedAt = &changedAt
	user.UpdatedAt = now

	if err := s.users.Save(ctx, *user); err != nil {
		return domain.TokenPair{}, fmt.Errorf("save password: %w", err)
	}

	return s.issuePair(domain.Principal{UserID: user.ID, Role: user.Role})
}
