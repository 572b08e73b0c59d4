package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is empty, it returns an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// ClientID records the connected client identifier under the key "client_id".
func ClientID(id string) slog.Attr {
	return slog.String("client_id", id)
}

// Channel records a broadcast channel name under the key "channel".
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
