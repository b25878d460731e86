package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/repository"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User

	saveErr   error
	updateErr error
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) Create(_ context.Context, user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return repository.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Save(_ context.Context, user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	return f.find(func(u domain.User) bool { return u.ID == id })
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	return f.find(func(u domain.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return f.find(func(u domain.User) bool { return u.Username == username })
}

func (f *fakeUserRepo) GetByResetTokenHash(_ context.Context, hash string, now time.Time) (*domain.User, error) {
	return f.find(func(u domain.User) bool {
		return u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash == hash &&
			u.PasswordResetExpiresAt != nil && u.PasswordResetExpiresAt.After(now)
	})
}

func (f *fakeUserRepo) List(_ context.Context, query domain.ListQuery, roles []domain.Role) (domain.Page[domain.User], error) {
	query = query.Normalize()
	f.mu.Lock()
	defer f.mu.Unlock()

	var items []domain.User
	for _, u := range f.users {
		if len(roles) == 0 || containsRole(roles, u.Role) {
			items = append(items, u)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Username < items[j].Username })

	page := domain.Page[domain.User]{Total: int64(len(items)), Page: query.Page, Limit: query.Limit}
	start := query.Offset()
	if start < len(items) {
		end := start + query.Limit
		if end > len(items) {
			end = len(items)
		}
		page.Items = items[start:end]
	}
	return page, nil
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (f *fakeUserRepo) UpdateRole(_ context.Context, id string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	f.users[id] = u
	return nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.Avatar != nil {
		avatar := *update.Avatar
		u.Avatar = &avatar
	}
	f.users[id] = u
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeRefreshStore enforces the (user, fingerprint) uniqueness the database index provides.
type fakeRefreshStore struct {
	mu      sync.Mutex
	records map[string]domain.RefreshTokenRecord

	// beforeAppend runs between Exists and Append, to widen race windows in tests.
	beforeAppend func()
	existsErr    error
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{records: make(map[string]domain.RefreshTokenRecord)}
}

func (f *fakeRefreshStore) Exists(_ context.Context, tokenHash, userID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[userID+"|"+tokenHash]
	return ok, nil
}

func (f *fakeRefreshStore) Append(_ context.Context, record domain.RefreshTokenRecord) error {
	if f.beforeAppend != nil {
		f.beforeAppend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := record.UserID + "|" + record.TokenHash
	if _, ok := f.records[key]; ok {
		return fmt.Errorf("insert refresh token: %w", repository.ErrConflict)
	}
	f.records[key] = record
	return nil
}

func (f *fakeRefreshStore) DeleteExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for key, rec := range f.records {
		if rec.IsExpired(now) {
			delete(f.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeRefreshStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeHasher is deterministic apart from the counter-based random tokens.
type fakeHasher struct {
	mu      sync.Mutex
	counter int
}

func (h *fakeHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return "hashed:" + secret, nil
}

func (h *fakeHasher) Verify(candidate, digest string) (bool, error) {
	if !strings.HasPrefix(digest, "hashed:") {
		return false, errors.New("unsupported digest")
	}
	return digest == "hashed:"+candidate, nil
}

func (h *fakeHasher) Fingerprint(token string) string {
	return "fp:" + token
}

func (h *fakeHasher) RandomToken(int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counter++
	return fmt.Sprintf("%064x", h.counter), nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	otps   []domain.VerificationOTPNotification
	resets []domain.PasswordResetNotification
	err    error
}

func (n *fakeNotifier) SendVerificationOTP(_ context.Context, msg domain.VerificationOTPNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps = append(n.otps, msg)
	return n.err
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, msg domain.PasswordResetNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, msg)
	return n.err
}

func (n *fakeNotifier) lastOTP() (domain.VerificationOTPNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.otps) == 0 {
		return domain.VerificationOTPNotification{}, false
	}
	return n.otps[len(n.otps)-1], true
}

func (n *fakeNotifier) lastReset() (domain.PasswordResetNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		return domain.PasswordResetNotification{}, false
	}
	return n.resets[len(n.resets)-1], true
}

type fakeFileStore struct {
	stored []domain.UploadedFile
	url    string
	err    error
}

func (s *fakeFileStore) Store(_ context.Context, file domain.UploadedFile) (domain.StoredFile, error) {
	if s.err != nil {
		return domain.StoredFile{}, s.err
	}
	s.stored = append(s.stored, file)
	return domain.StoredFile{URL: s.url + file.Name, Key: file.Name}, nil
}
