package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/mail"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	pw "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/session"
)

const (
	verificationCodeTTL = 10 * time.Minute
	maxEmailLength      = 255
	minUsernameLength   = 3
	maxUsernameLength   = 31
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Option customizes an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuthService orchestrates sign-up, sign-in, email verification and
// sign-out on top of the rate limiters and the session manager.
type AuthService struct {
	users         repository.UserRepository
	verifications repository.VerificationRepository
	sessions      *session.Manager
	mailer        mail.Sender
	limiters      *Limiters
	snowflake     *snowflake.Node
	policy        pw.Policy
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewAuthService wires dependencies.
func NewAuthService(
	users repository.UserRepository,
	verifications repository.VerificationRepository,
	sessions *session.Manager,
	mailer mail.Sender,
	limiters *Limiters,
	node *snowflake.Node,
	policy pw.Policy,
	logger *zap.Logger,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:         users,
		verifications: verifications,
		sessions:      sessions,
		mailer:        mailer,
		limiters:      limiters,
		snowflake:     node,
		policy:        policy,
		logger:        logger,
		tracer:        otel.Tracer("github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn authenticates with email and password and issues a session.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (*AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignIn")
	defer span.End()

	if !s.limiters.SignInIP.Check(in.ClientIP, 1) {
		return nil, rateLimitedError()
	}

	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, validationError("Please enter your email and password.")
	}
	if !validEmail(email) {
		return nil, validationError("Invalid email")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authenticationError("Account does not exist")
		}
		return nil, s.upstream(span, "load user", err)
	}

	if !s.limiters.SignInIP.Consume(in.ClientIP, 1) {
		return nil, rateLimitedError()
	}
	throttleKey := userKey(user.ID)
	if !s.limiters.SignInThrottle.Consume(throttleKey) {
		s.audit("signin.throttled", "user_id", user.ID, "wait", s.limiters.SignInThrottle.Wait(throttleKey).String())
		return nil, rateLimitedError()
	}

	if !user.HasPassword() {
		return nil, authenticationError("Invalid password")
	}
	valid, err := pw.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, s.upstream(span, "verify password", err)
	}
	if !valid {
		s.audit("signin.failed", "user_id", user.ID, "ip", in.ClientIP)
		return nil, authenticationError("Invalid password")
	}
	s.limiters.SignInThrottle.Reset(throttleKey)

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, s.upstream(span, "issue session", err)
	}
	s.audit("signin.success", "user_id", user.ID, "ip", in.ClientIP)
	result.Message = "Signed in"
	return result, nil
}

// SignOut invalidates the session behind token.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	ctx, span := s.startSpan(ctx, "AuthService.SignOut")
	defer span.End()

	if err := s.sessions.InvalidateSession(ctx, sessionID); err != nil {
		return s.upstream(span, "invalidate session", err)
	}
	return nil
}

// Authenticate resolves a session token. A nil result without error means
// the caller is anonymous.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Session, *domain.User, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Authenticate")
	defer span.End()

	sess, user, err := s.sessions.ValidateSession(ctx, token)
	if err != nil {
		return nil, nil, s.upstream(span, "validate session", err)
	}
	return sess, user, nil
}

// RevokeUserSessions signs a user out everywhere. Only admins may call it.
func (s *AuthService) RevokeUserSessions(ctx context.Context, actor *domain.User, userID int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RevokeUserSessions")
	defer span.End()

	if !actor.IsAdmin() {
		return 0, AuthorizationError("You do not have permission to do that.")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, validationError("User not found")
		}
		return 0, s.upstream(span, "load user", err)
	}
	n, err := s.sessions.InvalidateUserSessions(ctx, userID)
	if err != nil {
		return 0, s.upstream(span, "revoke sessions", err)
	}
	s.audit("sessions.revoked", "actor_id", actor.ID, "user_id", userID, "count", n)
	return n, nil
}

// IssueSession creates a session for an already authenticated user, such as
// one returning from an OAuth provider.
func (s *AuthService) IssueSession(ctx context.Context, user domain.User) (*AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.IssueSession")
	defer span.End()

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, s.upstream(span, "issue session", err)
	}
	return result, nil
}

func (s *AuthService) issueSession(ctx context.Context, user domain.User) (*AuthResult, error) {
	token, err := s.sessions.GenerateToken()
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.CreateSession(ctx, token, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Session: sess, User: user}, nil
}

// NewUserID allocates a snowflake id.
func (s *AuthService) NewUserID() int64 {
	return s.snowflake.Generate().Int64()
}

func (s *AuthService) upstream(span trace.Span, op string, err error) *AuthError {
	span.RecordError(err)
	s.log().Error("auth flow failed", zap.String("op", op), zap.Error(err))
	return UpstreamError(fmt.Errorf("%s: %w", op, err))
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", s.now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func validEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

func userKey(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func trimmed(v string) string {
	return strings.TrimSpace(v)
}
