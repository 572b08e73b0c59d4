package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of behavioral event.
type Type string

const (
	TypeSearch       Type = "search"
	TypeFilterApply  Type = "filter_apply"
	TypeListingView  Type = "listing_view"
	TypeListingClick Type = "listing_click"
	TypeSessionStart Type = "session_start"
	TypeSessionEnd   Type = "session_end"
	TypeSystemError  Type = "system_error"
)

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	switch t {
	case TypeSearch, TypeFilterApply, TypeListingView, TypeListingClick,
		TypeSessionStart, TypeSessionEnd, TypeSystemError:
		return true
	}
	return false
}

// Event is a single behavioral event emitted by a client session.
// UserID is empty for anonymous sessions. Type-specific fields
// (SearchQuery, FilterType/FilterValue, ListingID) are populated
// only for the matching event types.
type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	SearchQuery string         `json:"search_query,omitempty"`
	FilterType  string         `json:"filter_type,omitempty"`
	FilterValue any            `json:"filter_value,omitempty"`
	ListingID   string         `json:"listing_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType Type, sessionID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// Validate checks the minimal shape every event must have before it
// enters the pipeline.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return ErrUnknownType
	}
	if e.SessionID == "" {
		return ErrMissingSession
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// MetaFloat reads a numeric metadata field, tolerating the types JSON
// decoding produces for numbers.
func (e Event) MetaFloat(key string) (float64, bool) {
	v, ok := e.Metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// MetaString reads a string metadata field.
func (e Event) MetaString(key string) (string, bool) {
	v, ok := e.Metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
