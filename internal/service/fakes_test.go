package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
)

// fakeUserRepo is an in-memory UserRepository. Reads return copies so the
// store only changes through Update, like a real database.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return repository.ErrDuplicateUser
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *fakeUserRepo) findOne(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.Email == email })
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.Username == username })
}

func (r *fakeUserRepo) GetByEmailOrUsername(_ context.Context, email, username string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.Email == email || u.Username == username })
}

func (r *fakeUserRepo) GetByEmailToken(_ context.Context, token string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool { return u.EmailToken != nil && *u.EmailToken == token })
}

func (r *fakeUserRepo) GetByResetToken(_ context.Context, token string, now time.Time) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool {
		return u.PasswordResetToken != nil && *u.PasswordResetToken == token &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now)
	})
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if existing.Email == user.Email || existing.Username == user.Username {
			return repository.ErrDuplicateUser
		}
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

// fakeTokenRepo is an in-memory TokenRepository with the same capped-ring
// semantics as the Postgres implementation.
type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string][]domain.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string][]domain.RefreshToken)}
}

func (r *fakeTokenRepo) trim(userID string) {
	ring := r.tokens[userID]
	if len(ring) > domain.MaxRefreshTokens {
		r.tokens[userID] = ring[len(ring)-domain.MaxRefreshTokens:]
	}
}

func (r *fakeTokenRepo) Append(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[userID] = append(r.tokens[userID], domain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	r.trim(userID)
	return nil
}

func (r *fakeTokenRepo) Rotate(_ context.Context, userID, usedHash, newHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var kept []domain.RefreshToken
	for _, t := range r.tokens[userID] {
		if t.TokenHash == usedHash || !t.ExpiresAt.After(now) {
			continue
		}
		kept = append(kept, t)
	}
	kept = append(kept, domain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: newHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	r.tokens[userID] = kept
	r.trim(userID)
	return nil
}

func (r *fakeTokenRepo) Exists(_ context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens[userID] {
		if t.TokenHash == tokenHash && t.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTokenRepo) DeleteByHash(_ context.Context, userID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []domain.RefreshToken
	for _, t := range r.tokens[userID] {
		if t.TokenHash != tokenHash {
			kept = append(kept, t)
		}
	}
	r.tokens[userID] = kept
	return nil
}

func (r *fakeTokenRepo) CountByUserID(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens[userID]), nil
}

func (r *fakeTokenRepo) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for userID, ring := range r.tokens {
		var kept []domain.RefreshToken
		for _, t := range ring {
			if t.ExpiresAt.After(now) {
				kept = append(kept, t)
			}
		}
		r.tokens[userID] = kept
	}
	return nil
}

type sentEmail struct {
	to    string
	token string
	kind  string
}

// fakeEmailSender records outgoing emails instead of delivering them.
type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
	fail error
}

func (f *fakeEmailSender) SendConfirmationEmail(_ context.Context, to, token string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to: to, token: token, kind: "confirmation"})
	return nil
}

func (f *fakeEmailSender) SendPasswordResetEmail(_ context.Context, to, token string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to: to, token: token, kind: "reset"})
	return nil
}

func (f *fakeEmailSender) lastSent() (sentEmail, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentEmail{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeEmailSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
