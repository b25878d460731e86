package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/infra/config"
	"github.com/arklim/storefront-auth/internal/transport/http/middleware"
	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

// AuthUsecase is the session manager surface the auth routes need.
type AuthUsecase interface {
	middleware.AccessTokenValidator
	middleware.RefreshTokenValidator
	middleware.LocalValidator

	Register(ctx context.Context, in usecase.RegisterInput) (string, error)
	VerifyOtp(ctx context.Context, email, code string) (domain.TokenPair, error)
	IsEmailTaken(ctx context.Context, email string) (bool, error)
	IsUsernameTaken(ctx context.Context, username string) (bool, error)
	Login(ctx context.Context, principal domain.Principal) (domain.TokenPair, error)
	RefreshTokens(ctx context.Context, raw string, claims domain.RefreshClaims) (domain.TokenPair, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	ForgetPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, rawToken, password string) (domain.TokenPair, error)
}

// RefreshCookie describes the http-only cookie carrying the refresh token.
type RefreshCookie struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// NewRefreshCookie builds the cookie settings; maxAge is the refresh token lifetime.
func NewRefreshCookie(cfg config.CookieSettings, maxAge time.Duration) RefreshCookie {
	return RefreshCookie{
		Name:     cfg.RefreshName,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
		MaxAge:   maxAge,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteDefaultMode
	}
}

func (rc RefreshCookie) set(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     rc.Name,
		Value:    value,
		Path:     rc.Path,
		Domain:   rc.Domain,
		MaxAge:   int(rc.MaxAge.Seconds()),
		Secure:   rc.Secure,
		HttpOnly: true,
		SameSite: rc.SameSite,
	})
}

func (rc RefreshCookie) clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     rc.Name,
		Value:    "",
		Path:     rc.Path,
		Domain:   rc.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   rc.Secure,
		HttpOnly: true,
		SameSite: rc.SameSite,
	})
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth     AuthUsecase
	validate *validation.Validator
	cookie   RefreshCookie
	limiter  *middleware.RateLimiter
	limits   config.RateLimitSettings
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithRateLimits applies the per-route short and long windows.
func WithRateLimits(limiter *middleware.RateLimiter, limits config.RateLimitSettings) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.limiter = limiter
		h.limits = limits
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthUsecase, v *validation.Validator, cookie RefreshCookie, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:     auth,
		validate: v,
		cookie:   cookie,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds the /auth routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.limited("auth:register", false, h.register)...)
	r.POST("/verify-otp", h.limited("auth:verify-otp", false, h.verifyOtp)...)
	r.POST("/is-email-taken", h.limited("auth:is-email-taken", false, h.isEmailTaken)...)
	r.POST("/is-username-taken", h.limited("auth:is-username-taken", false, h.isUsernameTaken)...)
	r.POST("/login", h.limited("auth:login", false, middleware.RequireCredentials(h.validate, h.auth), h.login)...)
	r.GET("/me", middleware.RequireAuth(h.auth), h.me)
	r.POST("/refresh-tokens", h.limited("auth:refresh-tokens", true, middleware.RequireRefreshToken(h.auth, h.cookie.Name), h.refreshTokens)...)
	r.POST("/clear-auth-cookie", h.clearAuthCookie)
	r.POST("/forget-password", h.limited("auth:forget-password", false, h.forgetPassword)...)
	r.POST("/reset-password", h.limited("auth:reset-password", false, h.resetPassword)...)
}

// limited prepends the rate limiter to chain. Refresh uses the tighter limits.
func (h *AuthHandler) limited(route string, refresh bool, chain ...gin.HandlerFunc) []gin.HandlerFunc {
	if h.limiter == nil {
		return chain
	}

	limits := middleware.WindowLimits{
		Short:       h.limits.DefaultShort,
		Long:        h.limits.DefaultLong,
		ShortWindow: h.limits.ShortWindow,
		LongWindow:  h.limits.LongWindow,
	}
	if refresh {
		limits.Short = h.limits.RefreshShort
		limits.Long = h.limits.RefreshLong
	}

	return append([]gin.HandlerFunc{h.limiter.RateLimit(middleware.RouteRules(route, limits)...)}, chain...)
}

// Register godoc
// @Summary Register a new user account
// @Description Creates or overwrites an unverified account and mails a verification OTP.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Check(validation.RegisterRules, map[string]string{
		"username": req.Username,
		"email":    req.Email,
		"password": req.Password,
	}); err != nil {
		RespondWithError(c, err)
		return
	}

	msg, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: msg})
}

// VerifyOtp godoc
// @Summary Verify the registration OTP
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Email and code"
// @Success 200 {object} AccessTokenResponse
// @Failure 400 {object} ErrorResponse
// @Router /auth/verify-otp [post]
func (h *AuthHandler) verifyOtp(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Check(validation.VerifyOTPRules, map[string]string{
		"email": req.Email,
		"otp":   req.OTP,
	}); err != nil {
		RespondWithError(c, err)
		return
	}

	pair, err := h.auth.VerifyOtp(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	h.respondWithTokens(c, pair)
}

func (h *AuthHandler) isEmailTaken(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Check(validation.EmailRules, map[string]string{"email": req.Email}); err != nil {
		RespondWithError(c, err)
		return
	}

	taken, err := h.auth.IsEmailTaken(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, taken)
}

func (h *AuthHandler) isUsernameTaken(c *gin.Context) {
	var req UsernameRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Check(validation.UsernameRules, map[string]string{"username": req.Username}); err != nil {
		RespondWithError(c, err)
		return
	}

	taken, err := h.auth.IsUsernameTaken(c.Request.Context(), req.Username)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, taken)
}

// Login godoc
// @Summary Log in with email or username
// @Description Sets the refresh cookie and returns an access token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 200 {object} AccessTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	user, ok := middleware.GetLocalUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, usecase.ErrInvalidCredentials.Message))
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), domain.Principal{UserID: user.ID, Role: user.Role})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	h.respondWithTokens(c, pair)
}

// Me godoc
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, usecase.ErrUnauthorized.Message))
		return
	}

	c.Header("Cache-Control", "no-store")
	user, err := h.auth.Me(c.Request.Context(), principal.UserID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(*user))
}

// RefreshTokens godoc
// @Summary Rotate the refresh token
// @Description Exchanges the refresh cookie for a new access token and refresh cookie. A refresh token can be exchanged once.
// @Tags Authentication
// @Produce json
// @Success 200 {object} AccessTokenResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /auth/refresh-tokens [post]
func (h *AuthHandler) refreshTokens(c *gin.Context) {
	claims, ok := middleware.GetRefreshClaims(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, internalErrorMessage))
		return
	}

	pair, err := h.auth.RefreshTokens(c.Request.Context(), middleware.GetRefreshToken(c), claims)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	h.respondWithTokens(c, pair)
}

func (h *AuthHandler) clearAuthCookie(c *gin.Context) {
	h.cookie.clear(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) forgetPassword(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Check(validation.EmailRules, map[string]string{"email": req.Email}); err != nil {
		RespondWithError(c, err)
		return
	}

	msg, err := h.auth.ForgetPassword(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: msg})
}

func (h *AuthHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Check(validation.ResetPasswordRules, map[string]string{
		"token":    req.Token,
		"password": req.Password,
	}); err != nil {
		RespondWithError(c, err)
		return
	}

	pair, err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	h.respondWithTokens(c, pair)
}

func (h *AuthHandler) respondWithTokens(c *gin.Context, pair domain.TokenPair) {
	h.cookie.set(c, pair.RefreshToken)
	c.JSON(http.StatusOK, AccessTokenResponse{AccessToken: pair.AccessToken})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return false
	}
	return true
}
