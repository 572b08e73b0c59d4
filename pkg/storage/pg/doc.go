// Package pg provides the PostgreSQL persistence layer for the trend
// detection pipeline: durable event batches from the ingestion queue and
// the notification read model served to clients.
//
// The package wraps pgx/v5 and adds:
//
//   - Connect, which establishes a pgxpool with retry and backoff for
//     reliable startup ordering against the database.
//   - EventStore, the batch sink the ingestion queue flushes into.
//   - NotificationStore, an implementation of notification.Store.
//   - EnsureSchema, which creates the tables on first boot.
//   - A health-check helper for readiness probes.
//
// Configuration is described by the Config struct whose fields are
// populated from environment variables via github.com/caarlos0/env.
package pg
