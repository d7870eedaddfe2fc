package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket grants one token per refill interval up to capacity. Partial
// progress towards the next token survives consumption because updatedAt only
// moves forward by whole intervals.
type TokenBucket struct {
	capacity int
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*bucketEntry
}

var (
	_ Bucket  = (*TokenBucket)(nil)
	_ Sweeper = (*TokenBucket)(nil)
)

// NewTokenBucket builds a bucket holding capacity tokens that regenerates one
// token every refillInterval.
func NewTokenBucket(capacity int, refillInterval time.Duration, opts ...Option) *TokenBucket {
	o := buildOptions(opts)
	if capacity < 1 {
		capacity = 1
	}
	if refillInterval <= 0 {
		refillInterval = time.Second
	}
	return &TokenBucket{
		capacity: capacity,
		interval: refillInterval,
		now:      o.now,
		entries:  make(map[string]*bucketEntry),
	}
}

// Check reports whether cost tokens are available without consuming them.
func (b *TokenBucket) Check(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return cost <= b.capacity
	}
	count, _ := b.refill(entry, b.now())
	return count >= cost
}

// Consume takes cost tokens if they are available. A refused call leaves the
// entry untouched.
func (b *TokenBucket) Consume(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entry, ok := b.entries[key]
	if !ok {
		if cost > b.capacity {
			return false
		}
		b.entries[key] = &bucketEntry{count: b.capacity - cost, updatedAt: now}
		return true
	}

	count, updatedAt := b.refill(entry, now)
	if count < cost {
		return false
	}
	entry.count = count - cost
	entry.updatedAt = updatedAt
	return true
}

// Sweep drops entries that have refilled completely.
func (b *TokenBucket) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, entry := range b.entries {
		if count, _ := b.refill(entry, now); count >= b.capacity {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

func (b *TokenBucket) refill(entry *bucketEntry, now time.Time) (int, time.Time) {
	elapsed := now.Sub(entry.updatedAt)
	if elapsed < b.interval {
		return entry.count, entry.updatedAt
	}
	granted := elapsed / b.interval
	if granted >= time.Duration(b.capacity-entry.count) {
		return b.capacity, now
	}
	return entry.count + int(granted), entry.updatedAt.Add(granted * b.interval)
}
