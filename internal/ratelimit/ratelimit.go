// Package ratelimit provides process-local rate limiting primitives keyed by
// arbitrary identifiers such as client IPs or account ids.
//
// State lives in memory and is not shared between server instances. Every
// primitive guards its map with a mutex, so the read-modify-write of a single
// key is atomic within one process.
package ratelimit

import "time"

const defaultThrottleRetention = 24 * time.Hour

// Bucket is implemented by the token bucket variants.
type Bucket interface {
	Check(key string, cost int) bool
	Consume(key string, cost int) bool
}

// Sweeper removes entries that no longer carry any limiting state.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Option customizes a limiter.
type Option func(*options)

type options struct {
	now       func() time.Time
	retention time.Duration
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetention sets how long an idle throttler entry is kept before Sweep
// drops it. Buckets ignore it: their entries are swept once they are
// indistinguishable from a fresh key.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, retention: defaultThrottleRetention}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type bucketEntry struct {
	count     int
	updatedAt time.Time
}
