package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

// fakeAuth implements AuthUsecase. Unset function fields fail the test when called.
type fakeAuth struct {
	t *testing.T

	principals map[string]domain.Principal
	refresh    map[string]domain.RefreshClaims

	register        func(usecase.RegisterInput) (string, error)
	verifyOtp       func(email, code string) (domain.TokenPair, error)
	isEmailTaken    func(email string) (bool, error)
	isUsernameTaken func(username string) (bool, error)
	validateLocal   func(credential, password string) (*domain.User, error)
	login           func(domain.Principal) (domain.TokenPair, error)
	refreshTokens   func(raw string, claims domain.RefreshClaims) (domain.TokenPair, error)
	me              func(userID string) (*domain.User, error)
	forgetPassword  func(email string) (string, error)
	resetPassword   func(token, password string) (domain.TokenPair, error)
}

func (f *fakeAuth) unexpected(name string) error {
	f.t.Helper()
	f.t.Errorf("unexpected call to %s", name)
	return fmt.Errorf("unexpected call to %s", name)
}

func (f *fakeAuth) ValidateAccessToken(raw string) (domain.Principal, error) {
	if p, ok := f.principals[raw]; ok {
		return p, nil
	}
	return domain.Principal{}, fmt.Errorf("%w: unknown token", usecase.ErrUnauthorized)
}

func (f *fakeAuth) ValidateRefreshToken(raw string) (domain.RefreshClaims, error) {
	if claims, ok := f.refresh[raw]; ok {
		return claims, nil
	}
	return domain.RefreshClaims{}, fmt.Errorf("%w: unknown token", usecase.ErrUnauthorized)
}

func (f *fakeAuth) ValidateLocal(_ context.Context, credential, password string) (*domain.User, error) {
	if f.validateLocal == nil {
		return nil, f.unexpected("ValidateLocal")
	}
	return f.validateLocal(credential, password)
}

func (f *fakeAuth) Register(_ context.Context, in usecase.RegisterInput) (string, error) {
	if f.register == nil {
		return "", f.unexpected("Register")
	}
	return f.register(in)
}

func (f *fakeAuth) VerifyOtp(_ context.Context, email, code string) (domain.TokenPair, error) {
	if f.verifyOtp == nil {
		return domain.TokenPair{}, f.unexpected("VerifyOtp")
	}
	return f.verifyOtp(email, code)
}

func (f *fakeAuth) IsEmailTaken(_ context.Context, email string) (bool, error) {
	if f.isEmailTaken == nil {
		return false, f.unexpected("IsEmailTaken")
	}
	return f.isEmailTaken(email)
}

func (f *fakeAuth) IsUsernameTaken(_ context.Context, username string) (bool, error) {
	if f.isUsernameTaken == nil {
		return false, f.unexpected("IsUsernameTaken")
	}
	return f.isUsernameTaken(username)
}

func (f *fakeAuth) Login(_ context.Context, principal domain.Principal) (domain.TokenPair, error) {
	if f.login == nil {
		return domain.TokenPair{}, f.unexpected("Login")
	}
	return f.login(principal)
}

func (f *fakeAuth) RefreshTokens(_ context.Context, raw string, claims domain.RefreshClaims) (domain.TokenPair, error) {
	if f.refreshTokens == nil {
		return domain.TokenPair{}, f.unexpected("RefreshTokens")
	}
	return f.refreshTokens(raw, claims)
}

func (f *fakeAuth) Me(_ context.Context, userID string) (*domain.User, error) {
	if f.me == nil {
		return nil, f.unexpected("Me")
	}
	return f.me(userID)
}

func (f *fakeAuth) ForgetPassword(_ context.Context, email string) (string, error) {
	if f.forgetPassword == nil {
		return "", f.unexpected("ForgetPassword")
	}
	return f.forgetPassword(email)
}

func (f *fakeAuth) ResetPassword(_ context.Context, token, password string) (domain.TokenPair, error) {
	if f.resetPassword == nil {
		return domain.TokenPair{}, f.unexpected("ResetPassword")
	}
	return f.resetPassword(token, password)
}

func newTestValidator(t *testing.T) *validation.Validator {
	t.Helper()
	v, err := validation.New()
	if err != nil {
		t.Fatalf("validation.New: %v", err)
	}
	return v
}

func testCookie() RefreshCookie {
	return RefreshCookie{
		Name:     "refresh_token",
		Path:     "/auth",
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   30 * 24 * time.Hour,
	}
}

func pairFor(suffix string) domain.TokenPair {
	now := time.Now()
	return domain.TokenPair{
		AccessToken:      "access-" + suffix,
		AccessExpiresAt:  now.Add(30 * time.Minute),
		RefreshToken:     "refresh-" + suffix,
		RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

func doJSON(r http.Handler, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}
