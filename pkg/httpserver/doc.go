// Package httpserver wraps net/http with graceful shutdown tuned for a
// server that holds long-lived event streams.
//
// The server deliberately sets no write timeout: an open SSE stream would
// be killed by any fixed deadline. Slow-client protection lives in the
// transport layer instead, which drops frames rather than blocking.
//
// # Usage
//
//	srv := httpserver.New(cfg, router, httpserver.WithLogger(log))
//	if err := srv.Run(ctx); err != nil {
//	    // startup or shutdown failure
//	}
//
// Run blocks until the context is canceled, then drains in-flight requests
// within the configured shutdown timeout.
package httpserver
