package notification

import "errors"

// ErrMissingID is returned when a notification without an id is stored.
var ErrMissingID = errors.New("notification id is required")
