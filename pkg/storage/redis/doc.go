// Package redis provides Redis-backed storage for the trend detection
// pipeline, most importantly a windowed counter store that lets multiple
// pipeline instances share rule state.
//
// The package wraps the go-redis client and adds:
//
//   - A robust Connect helper that retries the connection using the
//     supplied configuration.
//   - CounterStore, a fixed-window counter with the same reset semantics
//     as the in-memory implementation in pkg/window.
//   - A health-check helper for liveness and readiness probes.
//
// Configuration is described by the Config struct whose fields are
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	ctx := context.Background()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	counters := redis.NewCounterStore(client)
//	n, err := counters.Increment(ctx, "search:wedding dress", time.Now(), 5*time.Minute)
//
// Counter keys expire on their own in Redis, so Sweep is a no-op kept only
// to satisfy the window.CounterStore interface.
package redis
