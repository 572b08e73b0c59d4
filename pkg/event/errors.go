package event

import "errors"

var (
	// ErrUnknownType is returned when an event carries an unrecognized type.
	ErrUnknownType = errors.New("unknown event type")

	// ErrMissingSession is returned when an event has no session identifier.
	ErrMissingSession = errors.New("event session id is required")

	// ErrMissingTimestamp is returned when an event has a zero timestamp.
	ErrMissingTimestamp = errors.New("event timestamp is required")
)
