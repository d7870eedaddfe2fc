package domain

import "time"

// Session is a server-side session. ID is the hex sha256 of the bearer token;
// the raw token is never stored.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// EmailVerificationRequest is the single pending verification code of a user.
type EmailVerificationRequest struct {
	ID        string
	UserID    int64
	Email     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code can no longer be redeemed at now.
func (r *EmailVerificationRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
