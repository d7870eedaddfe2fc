package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
)

// ErrDuplicate is returned when a unique constraint rejects a write, such as a
// second account for the same email.
var ErrDuplicate = errors.New("repository: duplicate record")

// UserRepository exposes persistence for storefront users.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	MarkEmailVerified(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID int64) error
}

// SessionRepository stores sessions keyed by hashed token.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// VerificationRepository keeps at most one pending email verification request
// per user.
type VerificationRepository interface {
	Replace(ctx context.Context, req domain.EmailVerificationRequest) error
	GetByUser(ctx context.Context, userID int64) (domain.EmailVerificationRequest, error)
	DeleteByUser(ctx context.Context, userID int64) error
}

// OAuthAccountRepository links external identities to users.
type OAuthAccountRepository interface {
	Get(ctx context.Context, provider, providerUserID string) (oauth.Account, error)
	Create(ctx context.Context, account oauth.Account) error
}

// OAuthProviderConfigRepo resolves configured identity providers.
type OAuthProviderConfigRepo interface {
	ListProviders(ctx context.Context) ([]oauth.ProviderConfig, error)
	GetProviderByName(ctx context.Context, name string) (*oauth.ProviderConfig, error)
}

// OAuthStateStore persists short-lived authorization state between the
// redirect to the provider and its callback.
type OAuthStateStore interface {
	SaveState(ctx context.Context, key string, data oauth.State, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*oauth.State, error)
	DeleteState(ctx context.Context, key string) error
}
