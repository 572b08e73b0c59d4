package notification

import "context"

// ListOptions controls pagination and read filtering for List.
type ListOptions struct {
	Limit       int  // maximum notifications to return (0 = store default)
	Offset      int  // notifications to skip for pagination
	IncludeRead bool // when false, only unread notifications are returned
}

// Preferences maps notification types to whether the user wants them.
// A type missing from the map is treated as enabled.
type Preferences map[Type]bool

// Enabled reports whether the user accepts notifications of the given type.
func (p Preferences) Enabled(t Type) bool {
	if p == nil {
		return true
	}
	enabled, ok := p[t]
	return !ok || enabled
}

// Store persists notifications and user delivery preferences.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert stores a new notification and returns its id.
	Insert(ctx context.Context, n Notification) (string, error)

	// List returns a user's notifications, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks one notification as read. Returns false when the
	// notification does not exist or belongs to another user.
	MarkRead(ctx context.Context, id, userID string) (bool, error)

	// MarkAllRead marks every unread notification of the user as read and
	// returns how many were affected.
	MarkAllRead(ctx context.Context, userID string) (int, error)

	// Delete removes one notification. Returns false when the notification
	// does not exist or belongs to another user.
	Delete(ctx context.Context, id, userID string) (bool, error)

	// CountUnread returns the number of unread notifications for the user.
	CountUnread(ctx context.Context, userID string) (int, error)

	// GetPreferences returns the user's per-type delivery preferences.
	GetPreferences(ctx context.Context, userID string) (Preferences, error)

	// SetPreferences replaces the user's per-type delivery preferences.
	SetPreferences(ctx context.Context, userID string, prefs Preferences) error
}
