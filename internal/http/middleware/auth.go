package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
)

const (
	sessionKey    = "session"
	userKey       = "user"
	sessionErrKey = "session_error"
)

// Auth resolves the session cookie and attaches the caller to the request.
type Auth struct {
	AuthService *service.AuthService
	Cookie      SessionCookie
}

// NewAuth builds the session middleware.
func NewAuth(authService *service.AuthService, cookie SessionCookie) *Auth {
	return &Auth{AuthService: authService, Cookie: cookie}
}

// LoadSession validates the session cookie when present. Invalid cookies are
// cleared; valid ones are rewritten so a renewed expiry reaches the browser.
// When the session store fails the caller continues as anonymous with the
// cookie kept, and RequireSession reports the failure on protected routes.
func (m *Auth) LoadSession(c *gin.Context) {
	token := m.Cookie.Read(c)
	if token == "" {
		c.Next()
		return
	}

	sess, user, err := m.AuthService.Authenticate(c.Request.Context(), token)
	if err != nil {
		authErr := service.AsAuthError(err)
		_ = c.Error(authErr)
		c.Set(sessionErrKey, authErr)
		c.Next()
		return
	}
	if sess == nil {
		m.Cookie.Clear(c)
		c.Next()
		return
	}

	m.Cookie.Set(c, token, sess.ExpiresAt)
	c.Set(sessionKey, sess)
	c.Set(userKey, user)
	c.Next()
}

// RequireSession rejects anonymous callers.
func (m *Auth) RequireSession(c *gin.Context) {
	if value, ok := c.Get(sessionErrKey); ok {
		authErr := value.(*service.AuthError)
		c.AbortWithStatusJSON(authErr.Status(), service.NewActionResult("", authErr))
		return
	}
	if _, ok := GetUser(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, service.NewActionResult("", &service.AuthError{
			Kind:    service.KindAuthentication,
			Message: "Not authenticated",
		}))
		return
	}
	c.Next()
}

// RequireRole rejects callers without role. It must run after RequireSession.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok || user.Role != role {
			AbortWithError(c, service.AuthorizationError("You do not have permission to do that."))
			return
		}
		c.Next()
	}
}

// GetUser returns the authenticated user.
func GetUser(c *gin.Context) (*domain.User, bool) {
	value, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok && user != nil
}

// GetSession returns the current session.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := value.(*domain.Session)
	return sess, ok && sess != nil
}

// AbortWithError writes err as an action result with the matching status.
func AbortWithError(c *gin.Context, err error) {
	authErr := service.AsAuthError(err)
	_ = c.Error(authErr)
	c.AbortWithStatusJSON(authErr.Status(), service.NewActionResult("", authErr))
}
