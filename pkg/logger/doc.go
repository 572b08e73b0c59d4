// Package logger builds configured slog.Logger instances and provides
// attribute helpers so the pipeline logs the same keys everywhere
// (client_id, event_type, retry_count, ...).
//
// New returns a *slog.Logger configured by functional options: output
// format (text for development, JSON for production), minimum level, and
// static attributes stamped on every record.
package logger
