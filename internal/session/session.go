// Package session issues and validates opaque session tokens. Only the
// sha256 of a token is persisted, so a leaked sessions table cannot be
// replayed.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
)

const (
	DefaultLifetime      = 30 * 24 * time.Hour
	DefaultRenewalWindow = 15 * 24 * time.Hour

	tokenBytes = 20
)

var tokenEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLifetime sets how long a new or renewed session lives.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithRenewalWindow sets how close to expiry a validated session is extended.
func WithRenewalWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.renewalWindow = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager owns the session lifecycle.
type Manager struct {
	sessions      repository.SessionRepository
	users         repository.UserRepository
	lifetime      time.Duration
	renewalWindow time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewManager constructs a Manager with a 30 day lifetime and 15 day renewal
// window unless overridden.
func NewManager(sessions repository.SessionRepository, users repository.UserRepository, opts ...Option) *Manager {
	m := &Manager{
		sessions:      sessions,
		users:         users,
		lifetime:      DefaultLifetime,
		renewalWindow: DefaultRenewalWindow,
		now:           time.Now,
		logger:        zap.L(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.renewalWindow > m.lifetime {
		m.renewalWindow = m.lifetime
	}
	return m
}

// Lifetime returns the configured session lifetime.
func (m *Manager) Lifetime() time.Duration { return m.lifetime }

// GenerateToken returns a random, URL-safe bearer token.
func (m *Manager) GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return tokenEncoding.EncodeToString(buf), nil
}

// SessionID derives the persisted id of a token.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession persists a session for userID under the hash of token.
func (m *Manager) CreateSession(ctx context.Context, token string, userID int64) (domain.Session, error) {
	now := m.now()
	s := domain.Session{
		ID:        SessionID(token),
		UserID:    userID,
		ExpiresAt: now.Add(m.lifetime),
		CreatedAt: now,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// ValidateSession resolves a token to its session and user. Unknown and
// expired tokens yield nil, nil and no error; expired sessions are deleted.
// A session inside the renewal window is extended to now + lifetime.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*domain.Session, *domain.User, error) {
	if token == "" {
		return nil, nil, nil
	}
	id := SessionID(token)

	s, err := m.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	now := m.now()
	if s.Expired(now) {
		if err := m.sessions.Delete(ctx, id); err != nil {
			return nil, nil, fmt.Errorf("delete expired session: %w", err)
		}
		return nil, nil, nil
	}

	user, err := m.users.GetByID(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			m.logger.Warn("session references missing user", zap.Int64("user_id", s.UserID))
			_ = m.sessions.Delete(ctx, id)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load session user: %w", err)
	}

	if !now.Before(s.ExpiresAt.Add(-m.renewalWindow)) {
		s.ExpiresAt = now.Add(m.lifetime)
		if err := m.sessions.UpdateExpiry(ctx, id, s.ExpiresAt); err != nil {
			return nil, nil, fmt.Errorf("renew session: %w", err)
		}
	}
	return &s, &user, nil
}

// InvalidateSession deletes one session by id.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateUserSessions deletes every session of a user and returns how many
// were removed.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID int64) (int64, error) {
	n, err := m.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate user sessions: %w", err)
	}
	return n, nil
}
