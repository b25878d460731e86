package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccessTokenResponse is returned wherever a token pair is issued; the refresh
// token travels in the cookie only.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyOTPRequest confirms an email with the mailed code.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// EmailRequest carries a single email address.
type EmailRequest struct {
	Email string `json:"email"`
}

// UsernameRequest carries a single username.
type UsernameRequest struct {
	Username string `json:"username"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserResponse is the public view of a user. Secrets never leave the service.
type UserResponse struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	FullName        string      `json:"full_name,omitempty"`
	Avatar          *string     `json:"avatar,omitempty"`
	Role            domain.Role `json:"role"`
	IsVerifiedEmail bool        `json:"is_verified_email"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// UserPageResponse wraps a page of users.
type UserPageResponse struct {
	Items []UserResponse `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// UploadResponse returns the public location of a stored file.
type UploadResponse struct {
	URL string `json:"url"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newUserResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		FullName:        user.FullName,
		Avatar:          user.Avatar,
		Role:            user.Role,
		IsVerifiedEmail: user.IsVerifiedEmail,
		IsActive:        user.IsActive,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

func newUserPageResponse(page domain.Page[domain.User]) UserPageResponse {
	items := make([]UserResponse, 0, len(page.Items))
	for _, user := range page.Items {
		items = append(items, newUserResponse(user))
	}
	return UserPageResponse{
		Items: items,
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	}
}
