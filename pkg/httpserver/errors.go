package httpserver

import "errors"

var (
	// ErrStart wraps failures to bind or serve.
	ErrStart = errors.New("httpserver: failed to start")

	// ErrShutdown wraps failures to drain within the shutdown timeout.
	ErrShutdown = errors.New("httpserver: failed to shut down cleanly")
)
