package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/infra/logger"
	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

const (
	principalKey     = "principal"
	refreshClaimsKey = "refresh_claims"
	refreshTokenKey  = "refresh_token"
	localUserKey     = "local_user"

	forbiddenMessage = "Forbidden resource"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// AccessTokenValidator verifies bearer tokens.
type AccessTokenValidator interface {
	ValidateAccessToken(raw string) (domain.Principal, error)
}

// RefreshTokenValidator verifies refresh tokens taken from the cookie.
type RefreshTokenValidator interface {
	ValidateRefreshToken(raw string) (domain.RefreshClaims, error)
}

// LocalValidator checks a credential/password pair.
type LocalValidator interface {
	ValidateLocal(ctx context.Context, credential, password string) (*domain.User, error)
}

// RequireAuth validates the Authorization header and stores the principal.
func RequireAuth(tokens AccessTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, usecase.ErrUnauthorized.Message))
			return
		}

		principal, err := tokens.ValidateAccessToken(raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// RequireRefreshToken validates the refresh cookie and stores its claims and raw value.
func RequireRefreshToken(tokens RefreshTokenValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(cookieName)
		if err != nil || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, usecase.ErrUnauthorized.Message))
			return
		}

		claims, err := tokens.ValidateRefreshToken(raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		c.Set(refreshClaimsKey, claims)
		c.Set(refreshTokenKey, raw)
		setPrincipal(c, claims.Principal)
		c.Next()
	}
}

// RequireCredentials validates the login body and resolves the user it names.
func RequireCredentials(v *validation.Validator, local LocalValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Credential string `json:"credential"`
			Password   string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, newErrorResponse(c, "invalid request body"))
			return
		}

		if err := v.Check(validation.LoginRules, map[string]string{
			"credential": body.Credential,
			"password":   body.Password,
		}); err != nil {
			var verr *validation.Error
			if errors.As(err, &verr) {
				c.AbortWithStatusJSON(http.StatusBadRequest, newErrorResponse(c, verr.Message))
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "internal server error"))
			return
		}

		user, err := local.ValidateLocal(c.Request.Context(), body.Credential, body.Password)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		c.Set(localUserKey, user)
		c.Next()
	}
}

// RequireRole admits principals holding any of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, usecase.ErrUnauthorized.Message))
			return
		}

		if !hasAnyRole(principal.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, forbiddenMessage))
			return
		}

		c.Next()
	}
}

func hasAnyRole(role domain.Role, allowed []domain.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// abortUnauthorized answers 401 with the client-safe message, or 500 for infrastructure failures.
func abortUnauthorized(c *gin.Context, err error) {
	if usecase.KindOf(err) == usecase.KindInternal {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "internal server error"))
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, usecase.MessageOf(err)))
}

func setPrincipal(c *gin.Context, principal domain.Principal) {
	c.Set(principalKey, principal)
	c.Set(UserIDKey, principal.UserID)

	if reqCtx := GetRequestContext(c); reqCtx != nil {
		reqCtx.UserID = principal.UserID
	}
	ctx := context.WithValue(c.Request.Context(), logger.UserIDKey{}, principal.UserID)
	c.Request = c.Request.WithContext(ctx)
}

// GetPrincipal returns the authenticated principal, if any.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := v.(domain.Principal)
	return principal, ok
}

// GetRefreshClaims returns the claims stored by RequireRefreshToken.
func GetRefreshClaims(c *gin.Context) (domain.RefreshClaims, bool) {
	v, ok := c.Get(refreshClaimsKey)
	if !ok {
		return domain.RefreshClaims{}, false
	}
	claims, ok := v.(domain.RefreshClaims)
	return claims, ok
}

// GetRefreshToken returns the raw refresh token stored by RequireRefreshToken.
func GetRefreshToken(c *gin.Context) string {
	return c.GetString(refreshTokenKey)
}

// GetLocalUser returns the user resolved by RequireCredentials.
func GetLocalUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(localUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok && user != nil
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
