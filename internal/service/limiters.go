package service

import (
	"net/http"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/ratelimit"
)

// Limiters groups the process-wide rate limit state of the auth flows.
type Limiters struct {
	Global         *ratelimit.TokenBucket
	SignInIP       *ratelimit.RefillingTokenBucket
	SignUpIP       *ratelimit.RefillingTokenBucket
	SignInThrottle *ratelimit.Throttler
	Verify         *ratelimit.ExpiringTokenBucket
	Resend         *ratelimit.ExpiringTokenBucket

	readCost  int
	writeCost int
}

// NewLimiters builds every limiter from configuration.
func NewLimiters(cfg config.RateLimitConfig, opts ...ratelimit.Option) *Limiters {
	throttleOpts := append([]ratelimit.Option{ratelimit.WithRetention(cfg.ThrottleRetention)}, opts...)
	return &Limiters{
		Global:         ratelimit.NewTokenBucket(cfg.GlobalCapacity, cfg.GlobalRefill, opts...),
		SignInIP:       ratelimit.NewRefillingTokenBucket(cfg.SignInIPCapacity, cfg.SignInIPRefill, opts...),
		SignUpIP:       ratelimit.NewRefillingTokenBucket(cfg.SignUpIPCapacity, cfg.SignUpIPRefill, opts...),
		SignInThrottle: ratelimit.NewThrottler(cfg.ThrottleSequence(), throttleOpts...),
		Verify:         ratelimit.NewExpiringTokenBucket(cfg.VerifyCapacity, cfg.VerifyWindow, opts...),
		Resend:         ratelimit.NewExpiringTokenBucket(cfg.ResendCapacity, cfg.ResendWindow, opts...),
		readCost:       cfg.ReadCost,
		writeCost:      cfg.WriteCost,
	}
}

// RequestCost returns the global bucket cost of an HTTP method. Reads are
// cheaper than writes.
func (l *Limiters) RequestCost(method string) int {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return l.readCost
	default:
		return l.writeCost
	}
}

// Sweepers lists every limiter for the janitor.
func (l *Limiters) Sweepers() []ratelimit.Sweeper {
	return []ratelimit.Sweeper{l.Global, l.SignInIP, l.SignUpIP, l.SignInThrottle, l.Verify, l.Resend}
}
