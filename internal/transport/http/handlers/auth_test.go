package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/usecase"
)

func newAuthRouter(t *testing.T, auth *fakeAuth) *gin.Engine {
	t.Helper()
	auth.t = t
	r := newTestEngine()
	NewAuthHandler(auth, newTestValidator(t), testCookie()).RegisterRoutes(r.Group("/auth"))
	return r
}

func refreshCookieFrom(t *testing.T, header http.Header) *http.Cookie {
	t.Helper()
	resp := http.Response{Header: header}
	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatalf("refresh cookie not set: %v", header.Values("Set-Cookie"))
	return nil
}

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return v
}

func TestRegister(t *testing.T) {
	var got usecase.RegisterInput
	auth := &fakeAuth{register: func(in usecase.RegisterInput) (string, error) {
		got = in
		return "OTP sent successfully", nil
	}}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/register", `{"username":"alice","email":"alice@x.com","password":"Passw0rd!"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if msg := decodeBody[MessageResponse](t, rr.Body.Bytes()); msg.Message != "OTP sent successfully" {
		t.Fatalf("message = %q", msg.Message)
	}
	if got.Username != "alice" || got.Email != "alice@x.com" {
		t.Fatalf("input not forwarded: %+v", got)
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	auth := &fakeAuth{register: func(usecase.RegisterInput) (string, error) {
		return "", usecase.ErrEmailTaken
	}}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/register", `{"username":"alice","email":"alice@x.com","password":"weakpass"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("weak password: expected 400, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "password too weak" {
		t.Fatalf("message = %q", body.Error)
	}

	rr = doJSON(r, http.MethodPost, "/auth/register", `{"username":"alice","email":"alice@x.com","password":"Passw0rd!"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("taken email: expected 409, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "Email already in use, Please login" {
		t.Fatalf("message = %q", body.Error)
	}
}

func TestVerifyOtpSetsRefreshCookie(t *testing.T) {
	auth := &fakeAuth{verifyOtp: func(email, code string) (domain.TokenPair, error) {
		if code != "123456" {
			return domain.TokenPair{}, usecase.ErrOTPIncorrect
		}
		return pairFor("1"), nil
	}}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/verify-otp", `{"email":"alice@x.com","otp":"123456"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody[AccessTokenResponse](t, rr.Body.Bytes()); body.AccessToken != "access-1" {
		t.Fatalf("access token = %q", body.AccessToken)
	}
	if strings.Contains(rr.Body.String(), "refresh-1") {
		t.Fatal("refresh token must not appear in the body")
	}

	cookie := refreshCookieFrom(t, rr.Header())
	if cookie.Value != "refresh-1" || !cookie.HttpOnly || !cookie.Secure || cookie.Path != "/auth" {
		t.Fatalf("unexpected cookie %+v", cookie)
	}
	if cookie.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Fatalf("max-age = %d", cookie.MaxAge)
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("same-site = %v", cookie.SameSite)
	}

	rr = doJSON(r, http.MethodPost, "/auth/verify-otp", `{"email":"alice@x.com","otp":"654321"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("wrong otp: expected 400, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "OTP is incorrect" {
		t.Fatalf("message = %q", body.Error)
	}
}

func TestIsTakenReturnsBoolean(t *testing.T) {
	auth := &fakeAuth{
		isEmailTaken:    func(email string) (bool, error) { return email == "alice@x.com", nil },
		isUsernameTaken: func(username string) (bool, error) { return false, nil },
	}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/is-email-taken", `{"email":"alice@x.com"}`)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "true" {
		t.Fatalf("is-email-taken: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(r, http.MethodPost, "/auth/is-username-taken", `{"username":"bob"}`)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "false" {
		t.Fatalf("is-username-taken: %d %s", rr.Code, rr.Body.String())
	}
}

func TestLogin(t *testing.T) {
	auth := &fakeAuth{
		validateLocal: func(credential, password string) (*domain.User, error) {
			if password != "Passw0rd!" {
				return nil, usecase.ErrInvalidCredentials
			}
			return &domain.User{ID: "u-1", Role: domain.RoleAdmin}, nil
		},
		login: func(p domain.Principal) (domain.TokenPair, error) {
			if p.UserID != "u-1" || p.Role != domain.RoleAdmin {
				t.Errorf("unexpected principal %+v", p)
			}
			return pairFor("login"), nil
		},
	}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/login", `{"credential":"alice","password":"Passw0rd!"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cookie := refreshCookieFrom(t, rr.Header()); cookie.Value != "refresh-login" {
		t.Fatalf("cookie = %q", cookie.Value)
	}

	rr = doJSON(r, http.MethodPost, "/auth/login", `{"credential":"alice","password":"nope"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "Invalid credentials" {
		t.Fatalf("message = %q", body.Error)
	}
}

func TestMeForbidsCaching(t *testing.T) {
	auth := &fakeAuth{
		principals: map[string]domain.Principal{"tok": {UserID: "u-1", Role: domain.RoleUser}},
		me: func(userID string) (*domain.User, error) {
			return &domain.User{ID: userID, Username: "alice", Email: "alice@x.com", PasswordHash: "secret-hash", Role: domain.RoleUser}, nil
		},
	}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodGet, "/auth/me", "", withBearer("tok"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if strings.Contains(rr.Body.String(), "secret-hash") {
		t.Fatal("password hash leaked")
	}
	if user := decodeBody[UserResponse](t, rr.Body.Bytes()); user.ID != "u-1" || user.Username != "alice" {
		t.Fatalf("unexpected user %+v", user)
	}

	if rr := doJSON(r, http.MethodGet, "/auth/me", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rr.Code)
	}
}

func TestRefreshTokensRotatesCookie(t *testing.T) {
	claims := domain.RefreshClaims{Principal: domain.Principal{UserID: "u-1", Role: domain.RoleUser}, ExpiresAt: time.Now().Add(time.Hour)}
	used := map[string]bool{}
	auth := &fakeAuth{
		refresh: map[string]domain.RefreshClaims{"refresh-old": claims, "refresh-new": claims},
		refreshTokens: func(raw string, c domain.RefreshClaims) (domain.TokenPair, error) {
			if used[raw] {
				return domain.TokenPair{}, usecase.ErrInvalidRefreshToken
			}
			used[raw] = true
			return pairFor("new"), nil
		},
	}
	r := newAuthRouter(t, auth)

	withCookie := func(value string) func(*http.Request) {
		return func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "refresh_token", Value: value})
		}
	}

	rr := doJSON(r, http.MethodPost, "/auth/refresh-tokens", "", withCookie("refresh-old"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cookie := refreshCookieFrom(t, rr.Header()); cookie.Value != "refresh-new" {
		t.Fatalf("cookie = %q", cookie.Value)
	}
	if body := decodeBody[AccessTokenResponse](t, rr.Body.Bytes()); body.AccessToken != "access-new" {
		t.Fatalf("access token = %q", body.AccessToken)
	}

	rr = doJSON(r, http.MethodPost, "/auth/refresh-tokens", "", withCookie("refresh-old"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "Invalid refresh token." {
		t.Fatalf("message = %q", body.Error)
	}

	if rr := doJSON(r, http.MethodPost, "/auth/refresh-tokens", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: expected 401, got %d", rr.Code)
	}
}

func TestClearAuthCookie(t *testing.T) {
	r := newAuthRouter(t, &fakeAuth{})

	rr := doJSON(r, http.MethodPost, "/auth/clear-auth-cookie", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	cookie := refreshCookieFrom(t, rr.Header())
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("cookie not expired: %+v", cookie)
	}
}

func TestForgetAndResetPassword(t *testing.T) {
	token := strings.Repeat("ab", 32)
	auth := &fakeAuth{
		forgetPassword: func(email string) (string, error) {
			if email != "alice@x.com" {
				return "", usecase.ErrNoUserWithEmail
			}
			return "Reset url has been sent to your email", nil
		},
		resetPassword: func(raw, password string) (domain.TokenPair, error) {
			if raw != token {
				return domain.TokenPair{}, usecase.ErrResetTokenInvalid
			}
			return pairFor("reset"), nil
		},
	}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/forget-password", `{"email":"alice@x.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("forget: expected 200, got %d", rr.Code)
	}
	rr = doJSON(r, http.MethodPost, "/auth/forget-password", `{"email":"nobody@x.com"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown email: expected 404, got %d", rr.Code)
	}

	rr = doJSON(r, http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","password":"N3wPassword!"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cookie := refreshCookieFrom(t, rr.Header()); cookie.Value != "refresh-reset" {
		t.Fatalf("cookie = %q", cookie.Value)
	}

	rr = doJSON(r, http.MethodPost, "/auth/reset-password", `{"token":"`+strings.Repeat("cd", 32)+`","password":"N3wPassword!"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad token: expected 400, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "Token is invalid or expired" {
		t.Fatalf("message = %q", body.Error)
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	auth := &fakeAuth{forgetPassword: func(string) (string, error) {
		return "", errors.New("pq: connection refused on 10.0.0.5")
	}}
	r := newAuthRouter(t, auth)

	rr := doJSON(r, http.MethodPost, "/auth/forget-password", `{"email":"alice@x.com"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != "internal server error" {
		t.Fatalf("detail leaked: %q", body.Error)
	}
}
