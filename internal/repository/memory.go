package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
)

// MemoryStore is an in-process replacement for Postgres used in development
// and tests. Lookups that find nothing return pgx.ErrNoRows like the Postgres
// repositories do.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[int64]domain.User
	sessions      map[string]domain.Session
	verifications map[int64]domain.EmailVerificationRequest
	accounts      map[string]oauth.Account
	now           func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]domain.User),
		sessions:      make(map[string]domain.Session),
		verifications: make(map[int64]domain.EmailVerificationRequest),
		accounts:      make(map[string]oauth.Account),
		now:           time.Now,
	}
}

func (s *MemoryStore) Users() *MemoryUserRepo                 { return &MemoryUserRepo{s} }
func (s *MemoryStore) Sessions() *MemorySessionRepo           { return &MemorySessionRepo{s} }
func (s *MemoryStore) Verifications() *MemoryVerificationRepo { return &MemoryVerificationRepo{s} }
func (s *MemoryStore) OAuthAccounts() *MemoryOAuthAccountRepo { return &MemoryOAuthAccountRepo{s} }

var (
	_ UserRepository         = (*MemoryUserRepo)(nil)
	_ SessionRepository      = (*MemorySessionRepo)(nil)
	_ VerificationRepository = (*MemoryVerificationRepo)(nil)
	_ OAuthAccountRepository = (*MemoryOAuthAccountRepo)(nil)
)

// MemoryUserRepo implements UserRepository on a MemoryStore.
type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = domain.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("get user: %w", pgx.ErrNoRows)
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by id: %w", pgx.ErrNoRows)
	}
	return u, nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = domain.NormalizeEmail(user.Email)
	if _, ok := r.s.users[user.ID]; ok {
		return domain.User{}, fmt.Errorf("create user: users_pkey: %w", ErrDuplicate)
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return domain.User{}, fmt.Errorf("create user: users_email_key: %w", ErrDuplicate)
		}
	}
	now := r.s.now()
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepo) MarkEmailVerified(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return fmt.Errorf("mark email verified: %w", pgx.ErrNoRows)
	}
	u.EmailVerified = true
	u.UpdatedAt = r.s.now()
	r.s.users[userID] = u
	return nil
}

// Delete removes the user together with its sessions, pending verification
// and OAuth links, mirroring the ON DELETE CASCADE of the Postgres schema.
func (r *MemoryUserRepo) Delete(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return fmt.Errorf("delete user: %w", pgx.ErrNoRows)
	}
	delete(r.s.users, userID)
	delete(r.s.verifications, userID)
	for id, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, id)
		}
	}
	for key, account := range r.s.accounts {
		if account.UserID == userID {
			delete(r.s.accounts, key)
		}
	}
	return nil
}

// MemorySessionRepo implements SessionRepository on a MemoryStore.
type MemorySessionRepo struct{ s *MemoryStore }

func (r *MemorySessionRepo) Create(ctx context.Context, session domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[session.ID]; ok {
		return fmt.Errorf("create session: %w", ErrDuplicate)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.s.now()
	}
	r.s.sessions[session.ID] = session
	return nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, id string) (domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("get session: %w", pgx.ErrNoRows)
	}
	return s, nil
}

func (r *MemorySessionRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return fmt.Errorf("update session expiry: %w", pgx.ErrNoRows)
	}
	s.ExpiresAt = expiresAt
	r.s.sessions[id] = s
	return nil
}

func (r *MemorySessionRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *MemorySessionRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, s := range r.s.sessions {
		if s.UserID == userID {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// MemoryVerificationRepo implements VerificationRepository on a MemoryStore.
type MemoryVerificationRepo struct{ s *MemoryStore }

func (r *MemoryVerificationRepo) Replace(ctx context.Context, req domain.EmailVerificationRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.s.now()
	}
	r.s.verifications[req.UserID] = req
	return nil
}

func (r *MemoryVerificationRepo) GetByUser(ctx context.Context, userID int64) (domain.EmailVerificationRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.verifications[userID]
	if !ok {
		return domain.EmailVerificationRequest{}, fmt.Errorf("get verification request: %w", pgx.ErrNoRows)
	}
	return req, nil
}

func (r *MemoryVerificationRepo) DeleteByUser(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.verifications, userID)
	return nil
}

// MemoryOAuthAccountRepo implements OAuthAccountRepository on a MemoryStore.
type MemoryOAuthAccountRepo struct{ s *MemoryStore }

func accountKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (r *MemoryOAuthAccountRepo) Get(ctx context.Context, provider, providerUserID string) (oauth.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	acc, ok := r.s.accounts[accountKey(provider, providerUserID)]
	if !ok {
		return oauth.Account{}, fmt.Errorf("get oauth account: %w", pgx.ErrNoRows)
	}
	return acc, nil
}

func (r *MemoryOAuthAccountRepo) Create(ctx context.Context, account oauth.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := accountKey(account.Provider, account.ProviderUserID)
	if _, ok := r.s.accounts[key]; ok {
		return fmt.Errorf("create oauth account: %w", ErrDuplicate)
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.s.now()
	}
	r.s.accounts[key] = account
	return nil
}
