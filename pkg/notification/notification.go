package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies what kind of detection produced a notification.
type Type string

const (
	TypeSearchSpike       Type = "search_spike"
	TypeFilterTrend       Type = "filter_trend"
	TypeListingPopularity Type = "listing_popularity"
	TypeHighValueListing  Type = "high_value_listing"
	TypeSystemErrorRate   Type = "system_error_rate"
)

// Priority orders notifications by urgency.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the wire representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Notification is a single alert produced by a rule firing on an event.
// UserID is empty for system-wide notifications that only reach the admin
// channel. EventID links back to the triggering event for replay.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	UserID    string         `json:"user_id,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
}

// New creates a notification with a fresh ID and the current timestamp.
func New(notifType Type, priority Priority, title, message string) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
