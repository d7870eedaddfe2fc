package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/handler"
	httpmiddleware "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/middleware"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter, logger *zap.Logger) (*gin.Engine, error) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.SameOrigin(cfg.CORS.AllowedOrigins))
	r.Use(authMiddleware.LoadSession)

	r.GET("/healthz", handler.Healthz)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/signin", authHandler.SignIn)

		authed := authGroup.Group("", authMiddleware.RequireSession)
		authed.POST("/signout", authHandler.SignOut)
		authed.POST("/verify-email", authHandler.VerifyEmail)
		authed.POST("/verify-email/resend", authHandler.ResendVerificationCode)
		authed.GET("/me", authHandler.Me)

		authGroup.GET("/oauth/:provider", authHandler.OAuthStart)
		authGroup.GET("/oauth/:provider/callback", authHandler.OAuthCallback)
	}

	admin := r.Group("/admin", authMiddleware.RequireSession, httpmiddleware.RequireRole(domain.RoleAdmin))
	{
		admin.DELETE("/users/:id/sessions", authHandler.RevokeUserSessions)
	}

	r.NoRoute(func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	return r, nil
}
