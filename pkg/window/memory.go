package window

import (
	"context"
	"sync"
	"time"
)

// entry is one live counting window.
type entry struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// expired reports whether the entry's window ended before now.
func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.windowStart) > e.window
}

// MemoryCounter is an in-memory CounterStore guarded by a single mutex.
// An optional background sweeper reclaims expired entries so that keys
// touched once do not accumulate forever.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*entry

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

// MemoryCounterOption configures a MemoryCounter.
type MemoryCounterOption func(*MemoryCounter)

// WithSweepInterval sets how often expired entries are reclaimed.
// Set to 0 to disable the background sweeper.
func WithSweepInterval(interval time.Duration) MemoryCounterOption {
	return func(c *MemoryCounter) {
		c.sweepInterval = interval
	}
}

// NewMemoryCounter creates an in-memory counter store.
// By default a sweeper runs every 15 minutes.
func NewMemoryCounter(opts ...MemoryCounterOption) *MemoryCounter {
	c := &MemoryCounter{
		entries:       make(map[string]*entry),
		sweepInterval: 15 * time.Minute,
		stopSweep:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

// Increment bumps the counter for key, restarting the window when stale.
func (c *MemoryCounter) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		c.entries[key] = &entry{count: 1, windowStart: now, window: window}
		return 1, nil
	}

	e.count++
	// Window length may be retuned at runtime; the live entry follows the
	// most recently requested length.
	e.window = window
	return e.count, nil
}

// Sweep removes all expired entries.
func (c *MemoryCounter) Sweep(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of live entries, expired or not.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *MemoryCounter) Close() {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
	})
}

func (c *MemoryCounter) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Sweep(context.Background(), time.Now())
		case <-c.stopSweep:
			return
		}
	}
}
