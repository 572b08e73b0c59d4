package channels

import "errors"

var (
	// ErrTransportNil is returned when a nil transport is provided.
	ErrTransportNil = errors.New("transport cannot be nil")

	// ErrClientNotFound is returned when operating on an unknown client.
	ErrClientNotFound = errors.New("client not found")

	// ErrManagerClosed is returned after the manager has been closed.
	ErrManagerClosed = errors.New("channel manager is closed")
)
