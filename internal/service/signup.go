package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	pw "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
)

// SignUp registers a customer, sends an email verification code and issues a
// session so the customer can verify right away.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignUp")
	defer span.End()

	if !s.limiters.SignUpIP.Check(in.ClientIP, 1) {
		return nil, rateLimitedError()
	}

	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, validationError("Please enter your email and password.")
	}
	if !validEmail(email) {
		return nil, validationError("Invalid email")
	}
	username := trimmed(in.Username)
	if username != "" && !validUsername(username) {
		return nil, validationError("Username must be between 3 and 31 characters")
	}
	if err := s.policy.Validate(in.Password); err != nil {
		return nil, validationError(passwordMessage(err))
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, validationError("Email is already used")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, s.upstream(span, "check email availability", err)
	}

	if !s.limiters.SignUpIP.Consume(in.ClientIP, 1) {
		return nil, rateLimitedError()
	}

	hash, err := pw.Hash(in.Password)
	if err != nil {
		return nil, s.upstream(span, "hash password", err)
	}

	id := s.NewUserID()
	if username == "" {
		username = usernameFromEmail(email, id)
	}
	user, err := s.users.Create(ctx, domain.User{
		ID:           id,
		Email:        email,
		Username:     username,
		Role:         domain.RoleCustomer,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, validationError("Email is already used")
		}
		return nil, s.upstream(span, "create user", err)
	}

	if _, err := s.createVerification(ctx, user); err != nil {
		return nil, s.upstream(span, "create verification request", err)
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, s.upstream(span, "issue session", err)
	}
	s.audit("signup.success", "user_id", user.ID, "ip", in.ClientIP)
	result.Message = "Account created. Check your inbox for a verification code."
	return result, nil
}

func validUsername(username string) bool {
	n := utf8.RuneCountInString(username)
	return n >= minUsernameLength && n <= maxUsernameLength && strings.TrimSpace(username) == username
}

// usernameFromEmail derives a username from the local part of the email,
// falling back to an id based name when the local part is too short.
func usernameFromEmail(email string, id int64) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	runes := []rune(local)
	if len(runes) > maxUsernameLength {
		runes = runes[:maxUsernameLength]
	}
	if len(runes) < minUsernameLength {
		suffix := strconv.FormatInt(id, 10)
		if len(suffix) > 6 {
			suffix = suffix[len(suffix)-6:]
		}
		return "user" + suffix
	}
	return string(runes)
}

func passwordMessage(err error) string {
	switch {
	case errors.Is(err, pw.ErrTooShort):
		return "Password is too short"
	case errors.Is(err, pw.ErrTooLong):
		return "Password is too long"
	default:
		return "Weak password: use upper and lower case letters, numbers and symbols"
	}
}

func (s *AuthService) logMailFailure(user domain.User, err error) {
	s.log().Warn("verification mail not sent", zap.Int64("user_id", user.ID), zap.Error(err))
}
