package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Kimkangyeon-17/teskflow/config"
	"github.com/Kimkangyeon-17/teskflow/internal/domain"
	pkglog "github.com/Kimkangyeon-17/teskflow/pkg/log"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "test",
		JWTSecret:       "test-secret",
		JWTAudience:     "frontend",
		JWTIssuer:       "users-service",
		AccessTTL:       30 * time.Minute,
		RefreshTTL:      168 * time.Hour,
		VerificationTTL: 24 * time.Hour,
		FrontendURL:     "http://localhost:3000",
	}
}

func testLogger() pkglog.Logger { return pkglog.New("users-service", "test") }

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	next  int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*domain.User{}}
}

func (r *mockUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.ID == "" {
		r.next++
		user.ID = fmt.Sprintf("user-%d", r.next)
	}
	if user.Timezone == "" {
		user.Timezone = "Asia/Seoul"
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindBySocial(_ context.Context, provider, socialID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.SocialProvider == provider && u.SocialID == socialID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *mockUserRepo) UpdateLoginMeta(_ context.Context, id string, at time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.LastLoginAt = &at
	u.LastLoginIP = ip
	return nil
}

type mockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.UserProfile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: map[string]*domain.UserProfile{}}
}

func (r *mockProfileRepo) Create(_ context.Context, profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile.ID == "" {
		profile.ID = "profile-" + profile.UserID
	}
	copied := *profile
	r.profiles[profile.UserID] = &copied
	return nil
}

func (r *mockProfileRepo) FindByUserID(_ context.Context, userID string) (*domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[userID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockProfileRepo) Update(_ context.Context, profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *profile
	r.profiles[profile.UserID] = &copied
	return nil
}

// mockTokenRepo reproduces the storage-level guarantee: Consume's mark-used
// step is a compare-and-swap under one lock, so exactly one of two
// concurrent consumers wins.
type mockTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.VerificationToken
	users  *mockUserRepo
	next   int
}

func newMockTokenRepo(users *mockUserRepo) *mockTokenRepo {
	return &mockTokenRepo{tokens: map[string]*domain.VerificationToken{}, users: users}
}

func (r *mockTokenRepo) Create(_ context.Context, token *domain.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		r.next++
		token.ID = fmt.Sprintf("token-%d", r.next)
	}
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *mockTokenRepo) FindByValue(_ context.Context, value string) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Token == value {
			copied := *t
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockTokenRepo) DeleteUnused(_ context.Context, userID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID && t.Email == email && !t.Used {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *mockTokenRepo) Consume(ctx context.Context, token *domain.VerificationToken) (*domain.User, error) {
	r.mu.Lock()
	stored, ok := r.tokens[token.ID]
	if !ok || stored.Used {
		r.mu.Unlock()
		return nil, domain.ErrTokenAlreadyUsed
	}
	stored.Used = true
	r.mu.Unlock()

	user, err := r.users.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if user.Email == token.Email && !user.EmailVerified {
		user.EmailVerified = true
		if err := r.users.Update(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (r *mockTokenRepo) CountIssued(_ context.Context, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Used && t.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

// mockRefreshRepo's RevokeActive is the same conditional update the real
// repository performs, held under one lock.
type mockRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshRepo() *mockRefreshRepo {
	return &mockRefreshRepo{tokens: map[string]*domain.RefreshToken{}}
}

func (r *mockRefreshRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *token
	r.tokens[token.TokenHash] = &copied
	return nil
}

func (r *mockRefreshRepo) RevokeActive(_ context.Context, hash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[hash]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	if tok.RevokedAt != nil {
		return nil, domain.ErrTokenReused
	}
	now := time.Now()
	tok.RevokedAt = &now
	copied := *tok
	return &copied, nil
}

func (r *mockRefreshRepo) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []string
	links []string
	err   error
}

func (n *mockNotifier) SendVerification(_ context.Context, email, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email)
	n.links = append(n.links, link)
	return nil
}

type mockEvents struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (e *mockEvents) Publish(_ context.Context, event, _, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}
