package eventqueue

import "errors"

var (
	// ErrStoreNil is returned when a nil event store is provided.
	ErrStoreNil = errors.New("event store cannot be nil")

	// ErrQueueClosed is returned when enqueueing after Close.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrPersistFailed is returned when a batch exhausts all retry attempts.
	ErrPersistFailed = errors.New("failed to persist event batch")

	// ErrFlushInProgress reports that a flush was skipped because another
	// flush is already running.
	ErrFlushInProgress = errors.New("flush already in progress")
)
