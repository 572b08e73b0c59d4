package window

import (
	"context"
	"time"
)

// CounterStore is the storage backend for fixed-window counters.
// Implementations must be safe for concurrent use.
type CounterStore interface {
	// Increment bumps the counter for key within the window that contains now
	// and returns the new count. If no live window exists for key, or the
	// existing window is stale (now - windowStart > window), the counter
	// restarts at 1.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)

	// Sweep discards every entry whose window expired relative to now.
	// It bounds memory between reads and never blocks counting for long.
	Sweep(ctx context.Context, now time.Time) error
}
