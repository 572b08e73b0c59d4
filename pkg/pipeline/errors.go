package pipeline

import "errors"

var (
	// ErrNilDependency is returned by New when a required dependency is missing.
	ErrNilDependency = errors.New("pipeline: required dependency is nil")

	// ErrShuttingDown is returned by Ingest after Shutdown has started.
	ErrShuttingDown = errors.New("pipeline: shutting down")
)
