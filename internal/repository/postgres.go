package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Compile-time interface assertions.
var (
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ SessionRepository      = (*PostgresSessionRepo)(nil)
	_ VerificationRepository = (*PostgresVerificationRepo)(nil)
	_ OAuthAccountRepository = (*PostgresOAuthAccountRepo)(nil)
)

// Migrate creates the tables used by the service when they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, email, username, avatar_url, role, password_hash, email_verified, created_at, updated_at`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, domain.NormalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, userID)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, email, username, avatar_url, role, password_hash, email_verified)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		domain.NormalizeEmail(user.Email),
		user.Username,
		user.AvatarURL,
		string(user.Role),
		nullableString(user.PasswordHash),
		user.EmailVerified,
	)
	inserted, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", mapWriteErr(err))
	}
	return inserted, nil
}

func (r *PostgresUserRepo) MarkEmailVerified(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark email verified: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresUserRepo) Delete(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete user: %w", pgx.ErrNoRows)
	}
	return nil
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`,
		session.ID, session.UserID, session.ExpiresAt,
	); err != nil {
		return fmt.Errorf("create session: %w", mapWriteErr(err))
	}
	return nil
}

func (r *PostgresSessionRepo) Get(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session
	if err := r.db.QueryRow(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *PostgresSessionRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update session expiry: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresSessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresVerificationRepo implements VerificationRepository.
type PostgresVerificationRepo struct {
	db *pgxpool.Pool
}

func NewPostgresVerificationRepo(pool *pgxpool.Pool) *PostgresVerificationRepo {
	return &PostgresVerificationRepo{db: pool}
}

// Replace deletes any pending request of the user and stores req in one
// transaction.
func (r *PostgresVerificationRepo) Replace(ctx context.Context, req domain.EmailVerificationRequest) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin verification tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM email_verification_requests WHERE user_id = $1`, req.UserID); err != nil {
		return fmt.Errorf("clear verification request: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO email_verification_requests (id, user_id, email, code, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		req.ID, req.UserID, req.Email, req.Code, req.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert verification request: %w", mapWriteErr(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit verification tx: %w", err)
	}
	return nil
}

func (r *PostgresVerificationRepo) GetByUser(ctx context.Context, userID int64) (domain.EmailVerificationRequest, error) {
	var req domain.EmailVerificationRequest
	if err := r.db.QueryRow(ctx,
		`SELECT id, user_id, email, code, expires_at, created_at FROM email_verification_requests WHERE user_id = $1`, userID,
	).Scan(&req.ID, &req.UserID, &req.Email, &req.Code, &req.ExpiresAt, &req.CreatedAt); err != nil {
		return domain.EmailVerificationRequest{}, fmt.Errorf("get verification request: %w", err)
	}
	return req, nil
}

func (r *PostgresVerificationRepo) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM email_verification_requests WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete verification request: %w", err)
	}
	return nil
}

// PostgresOAuthAccountRepo implements OAuthAccountRepository.
type PostgresOAuthAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOAuthAccountRepo(pool *pgxpool.Pool) *PostgresOAuthAccountRepo {
	return &PostgresOAuthAccountRepo{db: pool}
}

func (r *PostgresOAuthAccountRepo) Get(ctx context.Context, provider, providerUserID string) (oauth.Account, error) {
	var acc oauth.Account
	if err := r.db.QueryRow(ctx,
		`SELECT provider, provider_user_id, user_id, created_at FROM oauth_accounts WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&acc.Provider, &acc.ProviderUserID, &acc.UserID, &acc.CreatedAt); err != nil {
		return oauth.Account{}, fmt.Errorf("get oauth account: %w", err)
	}
	return acc, nil
}

func (r *PostgresOAuthAccountRepo) Create(ctx context.Context, account oauth.Account) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO oauth_accounts (provider, provider_user_id, user_id) VALUES ($1, $2, $3)`,
		account.Provider, account.ProviderUserID, account.UserID,
	); err != nil {
		return fmt.Errorf("create oauth account: %w", mapWriteErr(err))
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u            domain.User
		role         string
		passwordHash *string
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.AvatarURL,
		&role,
		&passwordHash,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	return u, nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
	}
	return err
}
