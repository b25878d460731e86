package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/usecase"
)

type fakeUsers struct {
	users     map[string]domain.User
	lastQuery domain.ListQuery
	lastInput usecase.UpdateProfileInput
	deleted   []string
}

func (f *fakeUsers) page(query domain.ListQuery, keep func(domain.User) bool) domain.Page[domain.User] {
	f.lastQuery = query
	page := domain.Page[domain.User]{Page: query.Page, Limit: query.Limit}
	for _, u := range f.users {
		if keep(u) {
			page.Items = append(page.Items, u)
		}
	}
	page.Total = int64(len(page.Items))
	return page
}

func (f *fakeUsers) List(_ context.Context, query domain.ListQuery) (domain.Page[domain.User], error) {
	return f.page(query, func(domain.User) bool { return true }), nil
}

func (f *fakeUsers) ListAdmins(_ context.Context, query domain.ListQuery) (domain.Page[domain.User], error) {
	return f.page(query, func(u domain.User) bool { return u.Role.IsAdmin() }), nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, usecase.ErrUserNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, usecase.ErrUserNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, usecase.ErrUserNotFound
}

func (f *fakeUsers) UpdateProfile(_ context.Context, actor domain.Principal, id string, in usecase.UpdateProfileInput) (*domain.User, error) {
	f.lastInput = in
	if actor.UserID != id && !actor.Role.IsAdmin() {
		return nil, usecase.ErrNotAllowedToUpdateUser
	}
	if in.Avatar != nil {
		if err := usecase.ValidateImage(*in.Avatar, usecase.DefaultMaxUploadBytes); err != nil {
			return nil, err
		}
	}
	u := f.users[id]
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	return &u, nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return usecase.ErrUserNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeUsers) Promote(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, usecase.ErrUserNotFound
	}
	if u.Role.IsAdmin() {
		return nil, usecase.ErrAlreadyPromoted
	}
	u.Role = domain.RoleAdmin
	return &u, nil
}

func (f *fakeUsers) Demote(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, usecase.ErrUserNotFound
	}
	if u.Role == domain.RoleUser {
		return nil, usecase.ErrNotAnAdmin
	}
	u.Role = domain.RoleUser
	return &u, nil
}

const (
	aliceID = "0b6f5f3e-5c1a-4c53-9a0e-3f7f1a2b9c01"
	rootID  = "0b6f5f3e-5c1a-4c53-9a0e-3f7f1a2b9c02"
	modID   = "0b6f5f3e-5c1a-4c53-9a0e-3f7f1a2b9c03"
	ghostID = "0b6f5f3e-5c1a-4c53-9a0e-3f7f1a2b9cff"
)

func newUsersRouter(t *testing.T) (*gin.Engine, *fakeUsers) {
	t.Helper()
	users := &fakeUsers{users: map[string]domain.User{
		aliceID: {ID: aliceID, Username: "alice", Email: "alice@x.com", Role: domain.RoleUser},
		rootID:  {ID: rootID, Username: "root", Email: "root@x.com", Role: domain.RoleSuperAdmin},
		modID:   {ID: modID, Username: "mod", Email: "mod@x.com", Role: domain.RoleAdmin},
	}}
	tokens := &fakeAuth{t: t, principals: map[string]domain.Principal{
		"user":  {UserID: aliceID, Role: domain.RoleUser},
		"super": {UserID: rootID, Role: domain.RoleSuperAdmin},
		"admin": {UserID: modID, Role: domain.RoleAdmin},
	}}

	r := newTestEngine()
	NewUserHandler(users, newTestValidator(t), tokens, 0).RegisterRoutes(r.Group("/user"))
	return r, users
}

func TestUserRoutesEnforceRoles(t *testing.T) {
	r, _ := newUsersRouter(t)

	cases := []struct {
		method, path, token string
		status              int
	}{
		{http.MethodGet, "/user", "", http.StatusUnauthorized},
		{http.MethodGet, "/user", "user", http.StatusForbidden},
		{http.MethodGet, "/user", "admin", http.StatusOK},
		{http.MethodGet, "/user/" + aliceID, "admin", http.StatusOK},
		{http.MethodGet, "/user/" + ghostID, "admin", http.StatusNotFound},
		{http.MethodGet, "/user/username/alice", "super", http.StatusOK},
		{http.MethodGet, "/user/email/ALICE@x.com", "super", http.StatusOK},
		{http.MethodDelete, "/user/" + aliceID, "admin", http.StatusForbidden},
		{http.MethodDelete, "/user/" + aliceID, "super", http.StatusOK},
		{http.MethodPatch, "/user/admins/" + aliceID, "admin", http.StatusForbidden},
		{http.MethodPatch, "/user/admins/" + aliceID, "super", http.StatusOK},
		{http.MethodPatch, "/user/admins/" + modID, "super", http.StatusBadRequest},
		{http.MethodDelete, "/user/admins/" + aliceID, "super", http.StatusBadRequest},
		{http.MethodDelete, "/user/admins/" + modID, "super", http.StatusOK},
		{http.MethodGet, "/user/admins/all", "admin", http.StatusOK},
	}

	for _, tc := range cases {
		var mutate []func(*http.Request)
		if tc.token != "" {
			mutate = append(mutate, withBearer(tc.token))
		}
		rr := doJSON(r, tc.method, tc.path, "", mutate...)
		if rr.Code != tc.status {
			t.Fatalf("%s %s as %q: expected %d, got %d: %s", tc.method, tc.path, tc.token, tc.status, rr.Code, rr.Body.String())
		}
	}
}

func TestListUsersQuery(t *testing.T) {
	r, users := newUsersRouter(t)

	rr := doJSON(r, http.MethodGet, "/user/admins/all?limit=500&page=2&sortBy=username&sortOrder=ASC", "", withBearer("admin"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	q := users.lastQuery
	if q.Limit != domain.MaxListLimit || q.Page != 2 || q.SortBy != "username" || q.SortOrder != domain.SortAsc {
		t.Fatalf("unexpected query %+v", q)
	}
	if page := decodeBody[UserPageResponse](t, rr.Body.Bytes()); page.Total != 2 {
		t.Fatalf("expected 2 admins, got %d", page.Total)
	}

	rr = doJSON(r, http.MethodGet, "/user?sortOrder=sideways", "", withBearer("admin"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad sortOrder: expected 400, got %d", rr.Code)
	}
	rr = doJSON(r, http.MethodGet, "/user?limit=ten", "", withBearer("admin"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rr.Code)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileContentType string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
		h.Set("Content-Type", fileContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestUpdateUser(t *testing.T) {
	r, users := newUsersRouter(t)

	send := func(token, id string, fields map[string]string, ct string, file []byte) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, fields, ct, file)
		req := httptest.NewRequest(http.MethodPatch, "/user/"+id, body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := send("user", aliceID, map[string]string{"fullName": "Alice Liddell"}, "image/png", []byte("png-bytes"))
	if rr.Code != http.StatusOK {
		t.Fatalf("owner update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if in := users.lastInput; in.FullName == nil || *in.FullName != "Alice Liddell" || in.Avatar == nil || in.Avatar.Name != "me.png" {
		t.Fatalf("input not forwarded: %+v", in)
	}
	if users.lastInput.Username != nil {
		t.Fatal("absent username must stay nil")
	}

	if rr := send("user", modID, map[string]string{"fullName": "Not Mine"}, "", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign update: expected 403, got %d", rr.Code)
	}
	if rr := send("admin", aliceID, map[string]string{"fullName": "Al"}, "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("short name: expected 400, got %d", rr.Code)
	}
	if rr := send("admin", aliceID, nil, "text/plain", []byte("hello")); rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("non-image: expected 415, got %d", rr.Code)
	}
}

func TestMalformedUserIDIsNotFound(t *testing.T) {
	r, users := newUsersRouter(t)

	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/user/abc"},
		{http.MethodDelete, "/user/abc"},
		{http.MethodPatch, "/user/admins/abc"},
		{http.MethodDelete, "/user/admins/1%27%20or%201=1"},
	}
	for _, tc := range cases {
		rr := doJSON(r, tc.method, tc.path, "", withBearer("super"))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d: %s", tc.method, tc.path, rr.Code, rr.Body.String())
		}
		if body := decodeBody[ErrorResponse](t, rr.Body.Bytes()); body.Error != usecase.ErrUserNotFound.Message {
			t.Fatalf("%s %s: unexpected error %q", tc.method, tc.path, body.Error)
		}
	}
	if len(users.deleted) != 0 {
		t.Fatalf("malformed id reached the usecase: %v", users.deleted)
	}

	body, contentType := multipartBody(t, map[string]string{"fullName": "Alice Liddell"}, "", nil)
	req := httptest.NewRequest(http.MethodPatch, "/user/abc", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer user")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("PATCH /user/abc: expected 404, got %d", rr.Code)
	}
}
