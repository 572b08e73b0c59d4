package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/trendwatch/pkg/notification"
)

// NotificationStore is the PostgreSQL implementation of notification.Store.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a notification store on top of an existing
// pool. The store does not own the pool; the caller closes it.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Insert stores a new notification and returns its id.
func (s *NotificationStore) Insert(ctx context.Context, n notification.Notification) (string, error) {
	metadata, err := jsonOrNil(n.Metadata)
	if err != nil {
		return "", errors.Join(ErrInsertFailed, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (id, notif_type, priority, title, message, metadata, read, created_at, user_id, event_id)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, NULLIF($9, ''), NULLIF($10, ''))`,
		n.ID, string(n.Type), int(n.Priority), n.Title, n.Message, metadata,
		n.Read, n.CreatedAt, n.UserID, n.EventID,
	)
	if err != nil {
		return "", errors.Join(ErrInsertFailed, err)
	}
	return n.ID, nil
}

// List returns a user's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, userID string, opts notification.ListOptions) ([]notification.Notification, error) {
	query := `
		SELECT id, notif_type, priority, title, message, metadata, read, created_at,
		       COALESCE(user_id, ''), COALESCE(event_id, '')
		FROM notifications
		WHERE user_id = $1`
	args := []any{userID}

	if !opts.IncludeRead {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $2`
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		if opts.Limit > 0 {
			query += ` OFFSET $3`
		} else {
			query += ` OFFSET $2`
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		var (
			n        notification.Notification
			metadata []byte
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Priority, &n.Title, &n.Message,
			&metadata, &n.Read, &n.CreatedAt, &n.UserID, &n.EventID); err != nil {
			return nil, errors.Join(ErrQueryFailed, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, errors.Join(ErrQueryFailed, err)
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return out, nil
}

// MarkRead marks one notification as read. Returns false when the
// notification does not exist or belongs to another user.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, errors.Join(ErrQueryFailed, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`,
		userID,
	)
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, err)
	}
	return int(tag.RowsAffected()), nil
}

// Delete removes one notification. Returns false when the notification
// does not exist or belongs to another user.
func (s *NotificationStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, errors.Join(ErrQueryFailed, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountUnread returns the number of unread notifications for the user.
func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, err)
	}
	return count, nil
}

// GetPreferences returns the user's per-type delivery preferences. Types
// without a stored row fall back to enabled.
func (s *NotificationStore) GetPreferences(ctx context.Context, userID string) (notification.Preferences, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT notif_type, enabled FROM notification_preferences WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	defer rows.Close()

	prefs := notification.Preferences{}
	for rows.Next() {
		var (
			notifType string
			enabled   bool
		)
		if err := rows.Scan(&notifType, &enabled); err != nil {
			return nil, errors.Join(ErrQueryFailed, err)
		}
		prefs[notification.Type(notifType)] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return prefs, nil
}

// SetPreferences replaces the user's per-type delivery preferences.
func (s *NotificationStore) SetPreferences(ctx context.Context, userID string, prefs notification.Preferences) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM notification_preferences WHERE user_id = $1`, userID,
	); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	for notifType, enabled := range prefs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notification_preferences (user_id, notif_type, enabled) VALUES ($1, $2, $3)`,
			userID, string(notifType), enabled,
		); err != nil {
			return errors.Join(ErrQueryFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}
