package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
)

// CORS allows the configured storefront origins to call the API with cookies.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if containsWildcard(cfg.AllowedOrigins) && !cfg.AllowCredentials {
		corsCfg.AllowAllOrigins = true
	} else {
		allowed := cfg.AllowedOrigins
		corsCfg.AllowOriginFunc = func(origin string) bool {
			return originAllowed(origin, allowed)
		}
	}
	return cors.New(corsCfg)
}

// SameOrigin rejects state-changing requests whose Origin header matches
// neither the request host nor a configured storefront origin.
func SameOrigin(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, c.Request.Host) {
			c.Next()
			return
		}
		if originAllowed(origin, allowedOrigins) && !containsWildcard(allowedOrigins) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, service.NewActionResult("", service.AuthorizationError("Request origin not allowed.")))
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
