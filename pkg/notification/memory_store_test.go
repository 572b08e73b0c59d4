package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trendwatch/pkg/notification"
)

func newStored(t *testing.T, s *notification.MemoryStore, userID string, read bool, createdAt time.Time) notification.Notification {
	t.Helper()

	n := notification.New(notification.TypeSearchSpike, notification.PriorityHigh, "t", "m")
	n.UserID = userID
	n.Read = read
	n.CreatedAt = createdAt

	_, err := s.Insert(context.Background(), n)
	require.NoError(t, err)
	return n
}

func TestMemoryStore_Insert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns id", func(t *testing.T) {
		t.Parallel()
		s := notification.NewMemoryStore()

		n := notification.New(notification.TypeFilterTrend, notification.PriorityMedium, "t", "m")
		n.UserID = "u1"

		id, err := s.Insert(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, n.ID, id)
	})

	t.Run("rejects missing id", func(t *testing.T) {
		t.Parallel()
		s := notification.NewMemoryStore()

		_, err := s.Insert(ctx, notification.Notification{UserID: "u1"})
		assert.ErrorIs(t, err, notification.ErrMissingID)
	})
}

func TestMemoryStore_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	s := notification.NewMemoryStore()
	oldest := newStored(t, s, "u1", false, base)
	read := newStored(t, s, "u1", true, base.Add(time.Minute))
	newest := newStored(t, s, "u1", false, base.Add(2*time.Minute))
	newStored(t, s, "other", false, base)

	t.Run("unread only by default, newest first", func(t *testing.T) {
		t.Parallel()
		got, err := s.List(ctx, "u1", notification.ListOptions{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, newest.ID, got[0].ID)
		assert.Equal(t, oldest.ID, got[1].ID)
	})

	t.Run("include read", func(t *testing.T) {
		t.Parallel()
		got, err := s.List(ctx, "u1", notification.ListOptions{IncludeRead: true})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, read.ID, got[1].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		t.Parallel()
		got, err := s.List(ctx, "u1", notification.ListOptions{IncludeRead: true, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, read.ID, got[0].ID)
	})

	t.Run("offset past the end", func(t *testing.T) {
		t.Parallel()
		got, err := s.List(ctx, "u1", notification.ListOptions{IncludeRead: true, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryStore_MarkRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notification.NewMemoryStore()
	n := newStored(t, s, "u1", false, time.Now())

	ok, err := s.MarkRead(ctx, n.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	t.Run("wrong user", func(t *testing.T) {
		ok, err := s.MarkRead(ctx, n.ID, "intruder")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown id", func(t *testing.T) {
		ok, err := s.MarkRead(ctx, "missing", "u1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_MarkAllRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notification.NewMemoryStore()
	newStored(t, s, "u1", false, time.Now())
	newStored(t, s, "u1", false, time.Now())
	newStored(t, s, "u1", true, time.Now())

	count, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := s.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notification.NewMemoryStore()
	n := newStored(t, s, "u1", false, time.Now())

	ok, err := s.Delete(ctx, n.ID, "other")
	require.NoError(t, err)
	assert.False(t, ok, "delete must be scoped to the owning user")

	ok, err = s.Delete(ctx, n.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.List(ctx, "u1", notification.ListOptions{IncludeRead: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_Preferences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := notification.NewMemoryStore()

	prefs, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, prefs.Enabled(notification.TypeSearchSpike), "unset preferences default to enabled")

	err = s.SetPreferences(ctx, "u1", notification.Preferences{
		notification.TypeSearchSpike: false,
	})
	require.NoError(t, err)

	prefs, err = s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, prefs.Enabled(notification.TypeSearchSpike))
	assert.True(t, prefs.Enabled(notification.TypeFilterTrend))
}
