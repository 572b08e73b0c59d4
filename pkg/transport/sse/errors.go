package sse

import "errors"

var (
	// ErrClientGone is returned when sending to a client id with no open stream.
	ErrClientGone = errors.New("sse: client stream is gone")

	// ErrClientStalled is returned when a client's outbound queue is full.
	ErrClientStalled = errors.New("sse: client queue is full, frame dropped")

	// ErrStreamingUnsupported is returned when the response writer cannot flush.
	ErrStreamingUnsupported = errors.New("sse: response writer does not support streaming")
)
