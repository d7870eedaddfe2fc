package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/ratelimit"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
)

// CostFunc prices a request against the global bucket.
type CostFunc func(method string) int

// RateLimiter enforces the per-client global request budget.
type RateLimiter struct {
	bucket ratelimit.Bucket
	cost   CostFunc
}

// NewRateLimiter wraps bucket keyed by client IP.
func NewRateLimiter(bucket ratelimit.Bucket, cost CostFunc) *RateLimiter {
	if cost == nil {
		cost = func(string) int { return 1 }
	}
	return &RateLimiter{bucket: bucket, cost: cost}
}

// Handler returns the gin middleware enforcing throttling behaviour.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil || r.bucket == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if !r.bucket.Consume(key, r.cost(c.Request.Method)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, service.NewActionResult("", &service.AuthError{
				Kind:    service.KindRateLimited,
				Message: service.MsgTooManyRequests,
			}))
			return
		}

		c.Next()
	}
}
