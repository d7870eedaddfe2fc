package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
)

// VerifyEmail redeems the pending verification code of an authenticated user.
func (s *AuthService) VerifyEmail(ctx context.Context, user *domain.User, code string) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyEmail")
	defer span.End()

	if user == nil {
		return "", authenticationError("Not authenticated")
	}
	if user.EmailVerified {
		return "", validationError("Email is already verified")
	}
	key := userKey(user.ID)
	if !s.limiters.Verify.Check(key, 1) {
		return "", rateLimitedError()
	}

	code = strings.ToUpper(trimmed(code))
	if code == "" {
		return "", validationError("Enter your code")
	}

	req, err := s.verifications.GetByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", authenticationError("No pending verification. Request a new code.")
		}
		return "", s.upstream(span, "load verification request", err)
	}

	if !s.limiters.Verify.Consume(key, 1) {
		return "", rateLimitedError()
	}

	if req.Expired(s.now()) {
		if _, err := s.createVerification(ctx, *user); err != nil {
			return "", s.upstream(span, "renew verification request", err)
		}
		return "", authenticationError("The verification code was expired. We sent another code to your inbox.")
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(req.Code)) != 1 {
		s.audit("email_verification.failed", "user_id", user.ID)
		return "", authenticationError("Incorrect code.")
	}

	if err := s.verifications.DeleteByUser(ctx, user.ID); err != nil {
		return "", s.upstream(span, "delete verification request", err)
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return "", s.upstream(span, "mark email verified", err)
	}
	s.audit("email_verification.success", "user_id", user.ID)
	return "Email verified", nil
}

// ResendVerificationCode replaces the pending code with a new one and mails it.
func (s *AuthService) ResendVerificationCode(ctx context.Context, user *domain.User) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ResendVerificationCode")
	defer span.End()

	if user == nil {
		return "", authenticationError("Not authenticated")
	}
	if user.EmailVerified {
		return "", validationError("Email is already verified")
	}
	if !s.limiters.Resend.Consume(userKey(user.ID), 1) {
		return "", rateLimitedError()
	}

	sent, err := s.createVerification(ctx, *user)
	if err != nil {
		return "", s.upstream(span, "create verification request", err)
	}
	if !sent {
		return "", UpstreamError(errors.New("verification mail not sent"))
	}
	return "A new code was sent to your inbox.", nil
}

// createVerification stores a fresh request for user, replacing any previous
// one, and mails the code. A mail failure is logged and reported through sent
// but does not fail the call.
func (s *AuthService) createVerification(ctx context.Context, user domain.User) (sent bool, err error) {
	id, err := randomID()
	if err != nil {
		return false, fmt.Errorf("generate request id: %w", err)
	}
	code, err := generateVerificationCode()
	if err != nil {
		return false, fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	req := domain.EmailVerificationRequest{
		ID:        id,
		UserID:    user.ID,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: now.Add(verificationCodeTTL),
		CreatedAt: now,
	}
	if err := s.verifications.Replace(ctx, req); err != nil {
		return false, err
	}
	if err := s.mailer.SendVerificationCode(ctx, user.Email, code); err != nil {
		s.logMailFailure(user, err)
		return false, nil
	}
	return true, nil
}

// generateVerificationCode returns 8 characters from the base32 alphabet.
func generateVerificationCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.EncodeToString(buf), nil
}
