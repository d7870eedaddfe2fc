package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/mail"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/session"
)

type unavailableSessionRepo struct {
	repository.SessionRepository
}

func (unavailableSessionRepo) Get(ctx context.Context, id string) (domain.Session, error) {
	return domain.Session{}, errors.New("db down")
}

func newEngine(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { AbortWithError(c, errors.New("db down")) })
	r.GET("/admin", func(c *gin.Context) {
		c.Set(userKey, &domain.User{ID: 7, Role: domain.RoleCustomer})
		c.Next()
	}, RequireRole(domain.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequestLoggerAssignsAndEchoesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newEngine(zap.New(core))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)
	require.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	require.Zero(t, logs.Len())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
	require.Equal(t, 1, logs.FilterField(zap.String("route", "unmatched")).Len())
}

func TestAbortWithErrorHidesUpstreamCause(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newEngine(zap.New(core))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "db down")
	require.Contains(t, w.Body.String(), service.MsgUpstream)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Contains(t, entries[0].ContextMap()["errors"], "db down")
}

func TestRequireRole(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newEngine(zap.New(core))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, int64(7), logs.All()[0].ContextMap()["user_id"])
}

func TestSessionCookieAttributes(t *testing.T) {
	cfg := config.Config{Environment: "production", Session: config.SessionConfig{CookieName: "session"}}
	cookie := NewSessionCookie(cfg)
	require.True(t, cookie.Secure)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	cookie.Set(c, "tok", expires)

	got := w.Result().Cookies()
	require.Len(t, got, 1)
	require.Equal(t, "tok", got[0].Value)
	require.True(t, got[0].HttpOnly)
	require.True(t, got[0].Secure)
	require.Equal(t, http.SameSiteLaxMode, got[0].SameSite)
	require.True(t, expires.Equal(got[0].Expires))
}

func TestLoadSessionStoreFailureOnlyBlocksProtectedRoutes(t *testing.T) {
	store := repository.NewMemoryStore()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	rates := config.RateLimitConfig{
		GlobalCapacity: 100, GlobalRefill: time.Second, ReadCost: 1, WriteCost: 3,
		SignInIPCapacity: 20, SignInIPRefill: time.Second,
		SignUpIPCapacity: 3, SignUpIPRefill: 10 * time.Second,
		VerifyCapacity: 5, VerifyWindow: 30 * time.Minute,
		ResendCapacity: 3, ResendWindow: 10 * time.Minute,
		ThrottleSeconds: []int{1, 2, 4}, ThrottleRetention: time.Hour,
	}
	authSvc := service.NewAuthService(
		store.Users(),
		store.Verifications(),
		session.NewManager(unavailableSessionRepo{store.Sessions()}, store.Users()),
		mail.NewLogSender(zap.NewNop()),
		service.NewLimiters(rates),
		node,
		password.DefaultPolicy(),
		zap.NewNop(),
	)
	auth := NewAuth(authSvc, NewSessionCookie(config.Config{Environment: "development"}))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.LoadSession)
	r.GET("/healthz", func(c *gin.Context) {
		_, ok := GetUser(c)
		require.False(t, ok)
		c.Status(http.StatusOK)
	})
	r.GET("/me", auth.RequireSession, func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: "tok"})
		r.ServeHTTP(w, req)
		return w
	}

	w := send("/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Result().Cookies(), "the cookie is kept while the store is down")

	w = send("/me")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "db down")
	require.Contains(t, w.Body.String(), service.MsgUpstream)
}
