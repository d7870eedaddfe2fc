package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically sweeps idle entries out of the registered limiters so
// that their maps do not grow with every distinct key ever seen.
type Janitor struct {
	interval time.Duration
	sweepers []Sweeper
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor builds a janitor. A nil logger falls back to zap.L().
func NewJanitor(interval time.Duration, logger *zap.Logger, sweepers ...Sweeper) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Janitor{
		interval: interval,
		sweepers: sweepers,
		logger:   logger.Named("ratelimit.janitor"),
		now:      time.Now,
	}
}

// SweepOnce runs every sweeper and returns the number of removed entries.
func (j *Janitor) SweepOnce() int {
	now := j.now()
	removed := 0
	for _, s := range j.sweepers {
		removed += s.Sweep(now)
	}
	if removed > 0 {
		j.logger.Debug("swept idle limiter entries", zap.Int("removed", removed))
	}
	return removed
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.SweepOnce()
			}
		}
	}(j.done)
}

// Stop ends the sweep loop and waits for it to exit or for ctx to expire.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
