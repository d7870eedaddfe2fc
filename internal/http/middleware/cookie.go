package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
)

// SessionCookie writes and reads the session cookie.
type SessionCookie struct {
	Name   string
	Domain string
	Secure bool
}

// NewSessionCookie derives cookie attributes from configuration. The cookie is
// only marked Secure outside development.
func NewSessionCookie(cfg config.Config) SessionCookie {
	name := cfg.Session.CookieName
	if name == "" {
		name = "session"
	}
	return SessionCookie{Name: name, Domain: cfg.Session.CookieDomain, Secure: !cfg.IsDevelopment()}
}

// Read returns the session token sent by the browser, if any.
func (s SessionCookie) Read(c *gin.Context) string {
	value, err := c.Cookie(s.Name)
	if err != nil {
		return ""
	}
	return value
}

// Set stores token until expiresAt.
func (s SessionCookie) Set(c *gin.Context, token string, expiresAt time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.Name,
		Value:    token,
		Path:     "/",
		Domain:   s.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the cookie.
func (s SessionCookie) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		Domain:   s.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
