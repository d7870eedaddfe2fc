package ratelimit

import (
	"sync"
	"time"
)

// ExpiringTokenBucket allows capacity units per window. Tokens never come back
// gradually; the whole allowance returns once the window that started with the
// first consumption has expired.
type ExpiringTokenBucket struct {
	capacity int
	expiry   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*bucketEntry
}

var (
	_ Bucket  = (*ExpiringTokenBucket)(nil)
	_ Sweeper = (*ExpiringTokenBucket)(nil)
)

// NewExpiringTokenBucket builds a bucket of capacity units per expiry window.
func NewExpiringTokenBucket(capacity int, expiry time.Duration, opts ...Option) *ExpiringTokenBucket {
	o := buildOptions(opts)
	if capacity < 1 {
		capacity = 1
	}
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &ExpiringTokenBucket{
		capacity: capacity,
		expiry:   expiry,
		now:      o.now,
		entries:  make(map[string]*bucketEntry),
	}
}

// Check reports whether cost units are available without consuming them.
func (b *ExpiringTokenBucket) Check(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok || b.expired(entry, b.now()) {
		return cost <= b.capacity
	}
	return entry.count >= cost
}

// Consume takes cost units from the current window.
func (b *ExpiringTokenBucket) Consume(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entry, ok := b.entries[key]
	if !ok || b.expired(entry, now) {
		if cost > b.capacity {
			return false
		}
		b.entries[key] = &bucketEntry{count: b.capacity - cost, updatedAt: now}
		return true
	}
	if entry.count < cost {
		return false
	}
	entry.count -= cost
	return true
}

// Reset forgets the key so its next call starts a new window.
func (b *ExpiringTokenBucket) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// Sweep drops entries whose window has expired.
func (b *ExpiringTokenBucket) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, entry := range b.entries {
		if b.expired(entry, now) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

func (b *ExpiringTokenBucket) expired(entry *bucketEntry, now time.Time) bool {
	return now.Sub(entry.updatedAt) >= b.expiry
}
