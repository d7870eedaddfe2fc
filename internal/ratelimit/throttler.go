package ratelimit

import (
	"sync"
	"time"
)

// DefaultSignInSequence is the escalating wait applied between sign-in
// attempts on one account.
var DefaultSignInSequence = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
	time.Minute,
	3 * time.Minute,
	5 * time.Minute,
}

type throttleEntry struct {
	index     int
	updatedAt time.Time
}

// Throttler enforces an escalating delay between attempts on the same key.
// The first attempt is always allowed; each allowed attempt moves the key one
// step further along the sequence, stopping at the last entry.
type Throttler struct {
	sequence  []time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*throttleEntry
}

var _ Sweeper = (*Throttler)(nil)

// NewThrottler builds a throttler over the given wait sequence.
func NewThrottler(sequence []time.Duration, opts ...Option) *Throttler {
	o := buildOptions(opts)
	seq := append([]time.Duration(nil), sequence...)
	if len(seq) == 0 {
		seq = []time.Duration{0}
	}
	return &Throttler{
		sequence:  seq,
		retention: o.retention,
		now:       o.now,
		entries:   make(map[string]*throttleEntry),
	}
}

// Consume records an attempt. It returns false, without changing anything,
// when the wait required by the current step has not elapsed yet.
func (t *Throttler) Consume(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.entries[key]
	if !ok {
		t.entries[key] = &throttleEntry{index: 0, updatedAt: now}
		return true
	}
	if now.Sub(entry.updatedAt) < t.sequence[entry.index] {
		return false
	}
	entry.updatedAt = now
	if entry.index < len(t.sequence)-1 {
		entry.index++
	}
	return true
}

// Wait returns how long the key still has to wait before Consume succeeds.
func (t *Throttler) Wait(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return 0
	}
	remaining := t.sequence[entry.index] - t.now().Sub(entry.updatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the key back to requiring no wait.
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Sweep drops entries idle for longer than the retention period.
func (t *Throttler) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.entries {
		if now.Sub(entry.updatedAt) > t.retention {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
