package ratelimit

import (
	"sync"
	"time"
)

// RefillingTokenBucket recomputes the available tokens on every call. Partial
// refill progress survives consumption. A key left alone for capacity*interval
// starts over as a fresh, full bucket.
type RefillingTokenBucket struct {
	capacity int
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*bucketEntry
}

var (
	_ Bucket  = (*RefillingTokenBucket)(nil)
	_ Sweeper = (*RefillingTokenBucket)(nil)
)

// NewRefillingTokenBucket builds a per-key bucket of capacity tokens, one of
// which comes back every refillInterval.
func NewRefillingTokenBucket(capacity int, refillInterval time.Duration, opts ...Option) *RefillingTokenBucket {
	o := buildOptions(opts)
	if capacity < 1 {
		capacity = 1
	}
	if refillInterval <= 0 {
		refillInterval = time.Second
	}
	return &RefillingTokenBucket{
		capacity: capacity,
		interval: refillInterval,
		now:      o.now,
		entries:  make(map[string]*bucketEntry),
	}
}

// Check reports whether cost tokens are available without consuming them.
func (b *RefillingTokenBucket) Check(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return cost <= b.capacity
	}
	count, _ := b.refreshed(entry, b.now())
	return count >= cost
}

// Consume takes cost tokens if they are available.
func (b *RefillingTokenBucket) Consume(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entry, ok := b.entries[key]
	if !ok || b.stale(entry, now) {
		if cost > b.capacity {
			return false
		}
		b.entries[key] = &bucketEntry{count: b.capacity - cost, updatedAt: now}
		return true
	}

	count, refilledAt := b.refreshed(entry, now)
	if count < cost {
		return false
	}
	entry.count = count - cost
	entry.updatedAt = refilledAt
	return true
}

// Sweep drops entries that would be treated as fresh on their next use.
func (b *RefillingTokenBucket) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, entry := range b.entries {
		if b.stale(entry, now) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

func (b *RefillingTokenBucket) stale(entry *bucketEntry, now time.Time) bool {
	return now.Sub(entry.updatedAt) >= time.Duration(b.capacity)*b.interval
}

// refreshed returns the token count at now and the instant refill progress is
// measured from, advanced only by whole granted intervals.
func (b *RefillingTokenBucket) refreshed(entry *bucketEntry, now time.Time) (int, time.Time) {
	if b.stale(entry, now) {
		return b.capacity, now
	}
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
