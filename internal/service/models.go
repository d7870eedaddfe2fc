package service

import (
	"time"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
)

// SignUpInput carries the sign-up form.
type SignUpInput struct {
	Email    string
	Username string
	Password string
	ClientIP string
}

// SignInInput carries the sign-in form.
type SignInInput struct {
	Email    string
	Password string
	ClientIP string
}

// AuthResult is returned by flows that issue a session. Token is the only
// client-visible credential and must be sent back as the session cookie.
type AuthResult struct {
	Token   string
	Session domain.Session
	User    domain.User
	Message string
}

// UserViewModel represents lightweight user profile data returned to clients.
type UserViewModel struct {
	ID            int64     `json:"id,string"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewUserViewModel maps a domain user to its public view.
func NewUserViewModel(u domain.User) UserViewModel {
	return UserViewModel{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		AvatarURL:     u.AvatarURL,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}
