package config

import "errors"

var (
	// ErrNilPointer is returned when the destination struct pointer is nil.
	ErrNilPointer = errors.New("config: destination must be a non-nil pointer")
	// ErrParsingConfig wraps failures reported by the environment parser.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")
)
