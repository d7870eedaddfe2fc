package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/middleware"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
	authsvc "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service/auth"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves the storefront auth endpoints.
type AuthHandler struct {
	Auth        *service.AuthService
	OAuth       *authsvc.OAuthService
	Cookie      middleware.SessionCookie
	RedirectURL string
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, oauth *authsvc.OAuthService, cookie middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{Auth: auth, OAuth: oauth, Cookie: cookie, RedirectURL: "/"}
}

// OAuthStart redirects to the provider with a fresh state and PKCE challenge.
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	output, err := h.OAuth.StartAuthorization(c.Request.Context(), provider)
	if err != nil {
		respondError(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    output.State,
		Path:     "/auth/oauth",
		MaxAge:   int(authsvc.StateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.Redirect(http.StatusFound, output.AuthorizationURL)
}

// OAuthCallback handles provider callbacks, issues the session cookie, and
// redirects to the storefront.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	cookieState, _ := c.Cookie(oauthStateCookie)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     oauthStateCookie,
		Path:     "/auth/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	result, err := h.OAuth.HandleCallback(c.Request.Context(), authsvc.OAuthCallbackInput{
		Provider:    c.Param("provider"),
		Code:        c.Query("code"),
		State:       c.Query("state"),
		CookieState: cookieState,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.Cookie.Set(c, result.Token, result.Session.ExpiresAt)
	redirect := h.RedirectURL
	if redirect == "" {
		redirect = "/"
	}
	c.Redirect(http.StatusFound, redirect)
}

func respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, service.NewActionResult(message, nil))
}

func invalidPayload(c *gin.Context) {
	respondError(c, &service.AuthError{Kind: service.KindValidation, Message: "Invalid payload."})
}
