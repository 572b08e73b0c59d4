package window_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trendwatch/pkg/window"
)

func TestMemoryCounter_Increment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	win := 5 * time.Minute

	t.Run("starts at one", func(t *testing.T) {
		t.Parallel()
		c := window.NewMemoryCounter(window.WithSweepInterval(0))

		count, err := c.Increment(ctx, "wedding dress", t0, win)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("accumulates within the window", func(t *testing.T) {
		t.Parallel()
		c := window.NewMemoryCounter(window.WithSweepInterval(0))

		_, err := c.Increment(ctx, "k", t0, win)
		require.NoError(t, err)

		count, err := c.Increment(ctx, "k", t0.Add(time.Second), win)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("resets after the window elapses", func(t *testing.T) {
		t.Parallel()
		c := window.NewMemoryCounter(window.WithSweepInterval(0))

		for i := range 5 {
			_, err := c.Increment(ctx, "k", t0.Add(time.Duration(i)*time.Second), win)
			require.NoError(t, err)
		}

		count, err := c.Increment(ctx, "k", t0.Add(win+time.Millisecond), win)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "stale window must restart at 1")
	})

	t.Run("exact window boundary still accumulates", func(t *testing.T) {
		t.Parallel()
		c := window.NewMemoryCounter(window.WithSweepInterval(0))

		_, err := c.Increment(ctx, "k", t0, win)
		require.NoError(t, err)

		count, err := c.Increment(ctx, "k", t0.Add(win), win)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "reset requires strictly more than the window")
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()
		c := window.NewMemoryCounter(window.WithSweepInterval(0))

		_, err := c.Increment(ctx, "a", t0, win)
		require.NoError(t, err)

		count, err := c.Increment(ctx, "b", t0, win)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestMemoryCounter_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	win := time.Minute

	c := window.NewMemoryCounter(window.WithSweepInterval(0))

	_, err := c.Increment(ctx, "stale", t0, win)
	require.NoError(t, err)
	_, err = c.Increment(ctx, "fresh", t0.Add(50*time.Second), win)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	require.NoError(t, c.Sweep(ctx, t0.Add(90*time.Second)))

	assert.Equal(t, 1, c.Len())

	// The surviving entry still accumulates.
	count, err := c.Increment(ctx, "fresh", t0.Add(100*time.Second), win)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := window.NewMemoryCounter(window.WithSweepInterval(0))
	now := time.Now()

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_, err := c.Increment(ctx, "shared", now, time.Hour)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	count, err := c.Increment(ctx, "shared", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, goroutines*perGoroutine+1, count)
}
