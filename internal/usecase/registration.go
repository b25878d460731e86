package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/logger"
	"github.com/arklim/storefront-auth/internal/repository"
)

// OTPSentMessage is returned after a verification code has been issued.
const OTPSentMessage = "OTP sent successfully"

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an unverified account, or overwrites a pending one, and
// mails a fresh OTP to it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	username := strings.TrimSpace(in.Username)
	email := domain.NormalizeEmail(in.Email)

	if s.passwords != nil {
		if err := s.passwords.Validate(in.Password); err != nil {
			return "", weakPassword(err)
		}
	}

	byEmail, err := s.lookup(s.users.GetByEmail(ctx, email))
	if err != nil {
		return "", err
	}
	byUsername, err := s.lookup(s.users.GetByUsername(ctx, username))
	if err != nil {
		return "", err
	}

	if (byEmail != nil && byEmail.IsVerifiedEmail) || (byUsername != nil && byUsername.IsVerifiedEmail) {
		switch {
		case byEmail != nil && byUsername != nil:
			return "", ErrEmailAndUsernameTaken
		case byEmail != nil:
			return "", ErrEmailTaken
		default:
			return "", ErrUsernameTaken
		}
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	var user domain.User

	switch {
	case byEmail != nil && byUsername == nil:
		user = *byEmail
		user.Username = username
		user.PasswordHash = passwordHash
	case byEmail != nil && byUsername != nil:
		if byEmail.ID != byUsername.ID {
			return "", ErrUsernameBoundToOtherEmail
		}
		user = *byEmail
		user.PasswordHash = passwordHash
	case byUsername != nil:
		if byUsername.Email != email {
			return "", ErrUsernameBoundToOtherEmail
		}
		user = *byUsername
		user.PasswordHash = passwordHash
	default:
		user = domain.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        email,
			PasswordHash: passwordHash,
			Role:         domain.RoleUser,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return "", ErrEmailAndUsernameTaken
			}
			return "", fmt.Errorf("create user: %w", err)
		}
	}

	if err := s.issueOTP(ctx, user); err != nil {
		return "", err
	}
	return OTPSentMessage, nil
}

func (s *AuthService) issueOTP(ctx context.Context, user domain.User) error {
	code, err := s.generateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	digest, err := s.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.OTPTTL)
	user.SetOTP(digest, expiresAt)
	user.UpdatedAt = now

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	s.logger.Info("verification otp issued",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
		zap.Time("expires_at", expiresAt),
	)

	notification := domain.VerificationOTPNotification{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: expiresAt,
	}
	s.dispatch(ctx, domain.MailKindVerificationOTP, user.Email, func(ctx context.Context) error {
		return s.notifier.SendVerificationOTP(ctx, notification)
	})
	return nil
}

// VerifyOtp confirms email ownership and returns the first token pair.
func (s *AuthService) VerifyOtp(ctx context.Context, email, code string) (domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.VerifyOtp")
	defer span.End()

	now := s.now().UTC()
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrOTPInvalidOrExpired
		}
		return domain.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	if user.IsVerifiedEmail {
		return domain.TokenPair{}, ErrAlreadyVerified
	}
	if !user.OTPActive(now) {
		return domain.TokenPair{}, ErrOTPInvalidOrExpired
	}

	ok, err := s.hasher.Verify(code, *user.OTPHash)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("verify otp: %w", err)
	}
	if !ok {
		return domain.TokenPair{}, ErrOTPIncorrect
	}

	user.MarkVerified()
	user.ClearOTP()
	user.UpdatedAt = now
	if err := s.users.Save(ctx, *user); err != nil {
		return domain.TokenPair{}, fmt.Errorf("save verified user: %w", err)
	}

	return s.issuePair(domain.Principal{UserID: user.ID, Role: user.Role})
}

func (s *AuthService) lookup(user *domain.User, err error) (*domain.User, error) {
	if err == nil {
		return user, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("lookup user: %w", err)
}

// weakPassword reports a password policy failure, keeping the policy's own
// message when it has one.
func weakPassword(err error) error {
	var violation port.PolicyViolation
	if errors.As(err, &violation) && violation.PolicyMessage() != "" {
		return ErrWeakPassword.withMessage(violation.PolicyMessage())
	}
	return ErrWeakPassword
}
