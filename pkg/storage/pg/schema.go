package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	user_id      TEXT,
	occurred_at  TIMESTAMPTZ NOT NULL,
	search_query TEXT,
	filter_type  TEXT,
	filter_value JSONB,
	listing_id   TEXT,
	metadata     JSONB,
	received_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS events_type_occurred_idx ON events (event_type, occurred_at);
CREATE INDEX IF NOT EXISTS events_session_idx ON events (session_id);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	notif_type TEXT NOT NULL,
	priority   SMALLINT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	metadata   JSONB,
	read       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	user_id    TEXT,
	event_id   TEXT
);
CREATE INDEX IF NOT EXISTS notifications_user_created_idx ON notifications (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS notifications_user_unread_idx ON notifications (user_id) WHERE NOT read;

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id    TEXT NOT NULL,
	notif_type TEXT NOT NULL,
	enabled    BOOLEAN NOT NULL,
	PRIMARY KEY (user_id, notif_type)
);
`

// EnsureSchema creates the pipeline tables when they do not exist yet.
// Intended for first boot and local development; production deployments
// usually run migrations out of band.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return errors.Join(ErrFailedToEnsureSchema, err)
	}
	return nil
}
