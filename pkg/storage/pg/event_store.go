package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/trendwatch/pkg/event"
)

// EventStore persists batches of analytics events. The ingestion queue is
// its only writer; each Flush becomes one pgx batch on a single connection.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an event store on top of an existing pool.
// The store does not own the pool; the caller closes it.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const insertEventSQL = `
INSERT INTO events (id, event_type, session_id, user_id, occurred_at, search_query, filter_type, filter_value, listing_id, metadata)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8::jsonb, NULLIF($9, ''), $10::jsonb)
ON CONFLICT (id) DO NOTHING`

// InsertEvents writes the whole batch in one round trip. Duplicate event
// ids are ignored so a retried flush never double-inserts.
func (s *EventStore) InsertEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		filterValue, err := jsonOrNil(ev.FilterValue)
		if err != nil {
			return errors.Join(ErrInsertFailed, err)
		}
		metadata, err := jsonOrNil(ev.Metadata)
		if err != nil {
			return errors.Join(ErrInsertFailed, err)
		}

		batch.Queue(insertEventSQL,
			ev.ID, string(ev.Type), ev.SessionID, ev.UserID, ev.Timestamp,
			ev.SearchQuery, ev.FilterType, filterValue, ev.ListingID, metadata,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Join(ErrInsertFailed, err)
	}
	return nil
}

// jsonOrNil marshals v for a jsonb column, mapping nil values to SQL NULL.
func jsonOrNil(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}
