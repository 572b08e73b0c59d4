package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript implements the fixed-window counter atomically on the server.
// Each counter is a hash with a window start (unix ms) and a count. When the
// elapsed time strictly exceeds the window the counter restarts at one,
// matching the in-memory implementation. Keys expire at twice the window so
// abandoned counters vanish without an explicit sweep.
var incrScript = redis.NewScript(`
local start = redis.call('HGET', KEYS[1], 'start')
if (not start) or (tonumber(ARGV[1]) - tonumber(start) > tonumber(ARGV[2])) then
	redis.call('HSET', KEYS[1], 'start', ARGV[1], 'count', 1)
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]) * 2)
	return 1
end
return redis.call('HINCRBY', KEYS[1], 'count', 1)
`)

// CounterStore is a Redis-backed fixed-window counter. It satisfies the
// window.CounterStore interface and can be shared by multiple pipeline
// instances pointing at the same Redis.
type CounterStore struct {
	client redis.UniversalClient
	prefix string
}

// CounterStoreOption customizes a CounterStore.
type CounterStoreOption func(*CounterStore)

// WithKeyPrefix namespaces all counter keys. The default prefix is
// "trendwatch:counter:".
func WithKeyPrefix(prefix string) CounterStoreOption {
	return func(s *CounterStore) {
		s.prefix = prefix
	}
}

// NewCounterStore creates a counter store on top of an existing client.
// The store does not own the client; the caller closes it.
func NewCounterStore(client redis.UniversalClient, opts ...CounterStoreOption) *CounterStore {
	s := &CounterStore{
		client: client,
		prefix: "trendwatch:counter:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment bumps the counter for key inside its current fixed window and
// returns the updated count. A counter whose window has elapsed restarts
// at one.
func (s *CounterStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	n, err := incrScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(),
	).Int()
	if err != nil {
		return 0, errors.Join(ErrIncrementFailed, err)
	}
	return n, nil
}

// Sweep is a no-op; Redis expires counter keys on its own.
func (s *CounterStore) Sweep(ctx context.Context, now time.Time) error {
	return nil
}
