package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	oauthadapter "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/cache"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/handler"
	httpmiddleware "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/middleware"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/middleware"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
	authsvc "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service/auth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/session"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return nil
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type testApp struct {
	router *gin.Engine
	store  *repository.MemoryStore
	mailer *captureMailer
}

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		ServiceName: "storefront-auth-test",
		PublicURL:   "http://shop.test",
		Session: config.SessionConfig{
			Lifetime:      30 * 24 * time.Hour,
			RenewalWindow: 15 * 24 * time.Hour,
			CookieName:    "session",
		},
		RateLimit: config.RateLimitConfig{
			GlobalCapacity: 100, GlobalRefill: time.Second, ReadCost: 1, WriteCost: 3,
			SignInIPCapacity: 20, SignInIPRefill: time.Second,
			SignUpIPCapacity: 3, SignUpIPRefill: 10 * time.Second,
			VerifyCapacity: 5, VerifyWindow: 30 * time.Minute,
			ResendCapacity: 3, ResendWindow: 10 * time.Minute,
			ThrottleSeconds: []int{1, 2, 4}, ThrottleRetention: time.Hour,
		},
		CORS: config.CORSConfig{
			AllowedOrigins:   []string{"http://storefront.test"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		},
		Google: config.OAuthProviderConfig{ClientID: "google-client"},
	}
}

func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	mailer := &captureMailer{}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	limiters := service.NewLimiters(cfg.RateLimit)
	sessions := session.NewManager(store.Sessions(), store.Users(),
		session.WithLifetime(cfg.Session.Lifetime),
		session.WithRenewalWindow(cfg.Session.RenewalWindow),
	)
	authService := service.NewAuthService(store.Users(), store.Verifications(), sessions, mailer, limiters, node, password.DefaultPolicy(), zap.NewNop())
	oauthService := authsvc.NewOAuthService(
		repository.NewStaticOAuthProviderConfigRepo(cfg.OAuthProviders()...),
		cache.NewMemoryStateStore(),
		oauthadapter.NewHTTPProviderClient(nil),
		store.Users(),
		store.OAuthAccounts(),
		authService,
		zap.NewNop(),
	)

	cookie := httpmiddleware.NewSessionCookie(cfg)
	router, err := NewRouter(
		cfg,
		handler.NewAuthHandler(authService, oauthService, cookie),
		httpmiddleware.NewAuth(authService, cookie),
		middleware.NewRateLimiter(limiters.Global, limiters.RequestCost),
		zap.NewNop(),
	)
	require.NoError(t, err)
	return &testApp{router: router, store: store, mailer: mailer}
}

func (a *testApp) do(t *testing.T, method, path, body string, cookies ...*nethttp.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *nethttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// sessionCookie returns the last session cookie written by the response.
func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *nethttp.Cookie {
	t.Helper()
	var found *nethttp.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			found = c
		}
	}
	require.NotNil(t, found, "no session cookie set")
	return found
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) service.ActionResult {
	t.Helper()
	var res service.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestSignUpVerifyAndSignOut(t *testing.T) {
	app := newTestApp(t, testConfig())

	w := app.do(t, nethttp.MethodPost, "/auth/signup", `{"email":"shopper@example.com","password":"Str0ng!Pass"}`)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	res := decodeResult(t, w)
	require.NotNil(t, res.Message)
	require.Nil(t, res.ErrorMessage)

	cookie := sessionCookie(t, w)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, nethttp.SameSiteLaxMode, cookie.SameSite)
	require.False(t, cookie.Secure)
	require.WithinDuration(t, time.Now().Add(30*24*time.Hour), cookie.Expires, time.Minute)

	w = app.do(t, nethttp.MethodGet, "/auth/me", "", cookie)
	require.Equal(t, nethttp.StatusOK, w.Code)
	var me service.UserViewModel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, "shopper@example.com", me.Email)
	require.False(t, me.EmailVerified)

	w = app.do(t, nethttp.MethodPost, "/auth/verify-email", `{"code":"WRONGCOD"}`, cookie)
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)
	require.Equal(t, "Incorrect code.", *decodeResult(t, w).ErrorMessage)

	code := app.mailer.code("shopper@example.com")
	require.Len(t, code, 8)
	w = app.do(t, nethttp.MethodPost, "/auth/verify-email", `{"code":"`+code+`"}`, cookie)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Email verified", *decodeResult(t, w).Message)

	w = app.do(t, nethttp.MethodPost, "/auth/signout", "", cookie)
	require.Equal(t, nethttp.StatusOK, w.Code)
	cleared := sessionCookie(t, w)
	require.Empty(t, cleared.Value)

	w = app.do(t, nethttp.MethodGet, "/auth/me", "", cookie)
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)
}

func TestSignInErrors(t *testing.T) {
	app := newTestApp(t, testConfig())

	w := app.do(t, nethttp.MethodPost, "/auth/signin", `{"email":"nobody@example.com","password":"x"}`)
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)
	require.Equal(t, "Account does not exist", *decodeResult(t, w).ErrorMessage)

	w = app.do(t, nethttp.MethodPost, "/auth/signin", `not json`)
	require.Equal(t, nethttp.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid payload.", *decodeResult(t, w).ErrorMessage)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	app := newTestApp(t, testConfig())

	for _, tc := range []struct{ method, path string }{
		{nethttp.MethodGet, "/auth/me"},
		{nethttp.MethodPost, "/auth/signout"},
		{nethttp.MethodPost, "/auth/verify-email"},
		{nethttp.MethodPost, "/auth/verify-email/resend"},
		{nethttp.MethodDelete, "/admin/users/1/sessions"},
	} {
		w := app.do(t, tc.method, tc.path, "")
		require.Equal(t, nethttp.StatusUnauthorized, w.Code, tc.path)
	}

	w := app.do(t, nethttp.MethodGet, "/auth/me", "", &nethttp.Cookie{Name: "session", Value: "bogus"})
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)
	require.Empty(t, sessionCookie(t, w).Value)
}

func TestAdminRevokeRequiresAdminRole(t *testing.T) {
	app := newTestApp(t, testConfig())
	ctx := context.Background()

	hash, err := password.Hash("Adm1n!pass")
	require.NoError(t, err)
	_, err = app.store.Users().Create(ctx, domain.User{ID: 1, Email: "admin@example.com", Username: "admin", Role: domain.RoleAdmin, PasswordHash: hash, EmailVerified: true})
	require.NoError(t, err)

	w := app.do(t, nethttp.MethodPost, "/auth/signup", `{"email":"c@example.com","password":"Str0ng!Pass"}`)
	require.Equal(t, nethttp.StatusOK, w.Code)
	customer := sessionCookie(t, w)
	customerUser, err := app.store.Users().GetByEmail(ctx, "c@example.com")
	require.NoError(t, err)

	w = app.do(t, nethttp.MethodDelete, "/admin/users/1/sessions", "", customer)
	require.Equal(t, nethttp.StatusForbidden, w.Code)

	w = app.do(t, nethttp.MethodPost, "/auth/signin", `{"email":"admin@example.com","password":"Adm1n!pass"}`)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	admin := sessionCookie(t, w)

	w = app.do(t, nethttp.MethodDelete, "/admin/users/abc/sessions", "", admin)
	require.Equal(t, nethttp.StatusBadRequest, w.Code)

	w = app.do(t, nethttp.MethodDelete, "/admin/users/"+strconv.FormatInt(customerUser.ID, 10)+"/sessions", "", admin)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Revoked 1 sessions", *decodeResult(t, w).Message)

	w = app.do(t, nethttp.MethodGet, "/auth/me", "", customer)
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)
}

func TestGlobalRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.GlobalCapacity = 4
	cfg.RateLimit.GlobalRefill = time.Hour
	app := newTestApp(t, cfg)

	require.Equal(t, nethttp.StatusOK, app.do(t, nethttp.MethodGet, "/healthz", "").Code)
	require.Equal(t, nethttp.StatusUnauthorized, app.do(t, nethttp.MethodPost, "/auth/signin", `{"email":"a@b.com","password":"x"}`).Code)

	w := app.do(t, nethttp.MethodPost, "/auth/signin", `{"email":"a@b.com","password":"x"}`)
	require.Equal(t, nethttp.StatusTooManyRequests, w.Code)
	require.Equal(t, service.MsgTooManyRequests, *decodeResult(t, w).ErrorMessage)
}

func TestCrossOriginWritesRejected(t *testing.T) {
	app := newTestApp(t, testConfig())

	req := httptest.NewRequest(nethttp.MethodPost, "/auth/signin", strings.NewReader(`{}`))
	req.Header.Set("Origin", "http://evil.test")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, nethttp.StatusForbidden, w.Code)

	req = httptest.NewRequest(nethttp.MethodPost, "/auth/signin", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
	req.Header.Set("Origin", "http://storefront.test")
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)
	require.Equal(t, "http://storefront.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOAuthStartRedirects(t *testing.T) {
	app := newTestApp(t, testConfig())

	w := app.do(t, nethttp.MethodGet, "/auth/oauth/github", "")
	require.Equal(t, nethttp.StatusBadRequest, w.Code)

	w = app.do(t, nethttp.MethodGet, "/auth/oauth/google", "")
	require.Equal(t, nethttp.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", location.Host)
	require.Equal(t, "http://shop.test/auth/oauth/google/callback", location.Query().Get("redirect_uri"))

	var stateCookie *nethttp.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "oauth_state" {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)
	require.Equal(t, location.Query().Get("state"), stateCookie.Value)

	w = app.do(t, nethttp.MethodGet, "/auth/oauth/google/callback?code=c&state="+stateCookie.Value, "")
	require.Equal(t, nethttp.StatusUnauthorized, w.Code)

	w = app.do(t, nethttp.MethodGet, "/auth/oauth/google/callback?state="+stateCookie.Value, "", stateCookie)
	require.Equal(t, nethttp.StatusBadRequest, w.Code)
}
