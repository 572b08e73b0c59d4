package rules_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trendwatch/pkg/channels"
	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
	"github.com/dmitrymomot/trendwatch/pkg/rules"
)

// recordingBroadcaster captures broadcast channels and payloads.
type recordingBroadcaster struct {
	mu     sync.Mutex
	frames map[string][]protocol.Frame
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{frames: make(map[string][]protocol.Frame)}
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, channel string, frame protocol.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[channel] = append(b.frames[channel], frame)
	return nil
}

func (b *recordingBroadcaster) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames[channel])
}

// failingStore wraps MemoryStore and fails inserts on demand.
type failingStore struct {
	*notification.MemoryStore
	failInsert bool
}

func (s *failingStore) Insert(ctx context.Context, n notification.Notification) (string, error) {
	if s.failInsert {
		return "", errors.New("store down")
	}
	return s.MemoryStore.Insert(ctx, n)
}

func TestEngine_ProcessEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("match persists and broadcasts", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		require.NoError(t, registry.Add(staticRule("always")))

		store := notification.NewMemoryStore()
		bc := newRecordingBroadcaster()
		engine, err := rules.NewEngine(registry, store, rules.WithBroadcaster(bc))
		require.NoError(t, err)

		ev := event.New(event.TypeSearch, "s1")
		ev.UserID = "u1"

		created, err := engine.ProcessEvent(ctx, ev)
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, "u1", created[0].UserID, "user id attaches from the event")
		assert.Equal(t, ev.ID, created[0].EventID)

		stored, err := store.List(ctx, "u1", notification.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, stored, 1)

		assert.Equal(t, 1, bc.count(channels.UserChannel("u1")))
		assert.Equal(t, 1, bc.count(channels.AdminChannel))
	})

	t.Run("anonymous event skips the user channel", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		require.NoError(t, registry.Add(staticRule("always")))

		bc := newRecordingBroadcaster()
		engine, err := rules.NewEngine(registry, notification.NewMemoryStore(), rules.WithBroadcaster(bc))
		require.NoError(t, err)

		created, err := engine.ProcessEvent(ctx, event.New(event.TypeSearch, "s1"))
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, 1, bc.count(channels.AdminChannel))

		bc.mu.Lock()
		channelCount := len(bc.frames)
		bc.mu.Unlock()
		assert.Equal(t, 1, channelCount, "admin channel only")
	})

	t.Run("disabled rules do not evaluate", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		require.NoError(t, registry.Add(staticRule("always")))
		registry.Disable("always")

		engine, err := rules.NewEngine(registry, notification.NewMemoryStore())
		require.NoError(t, err)

		created, err := engine.ProcessEvent(ctx, event.New(event.TypeSearch, "s1"))
		require.NoError(t, err)
		assert.Empty(t, created)
	})

	t.Run("event type filter applies", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		require.NoError(t, registry.Add(staticRule("search-only", event.TypeSearch)))

		engine, err := rules.NewEngine(registry, notification.NewMemoryStore())
		require.NoError(t, err)

		created, err := engine.ProcessEvent(ctx, event.New(event.TypeListingView, "s1"))
		require.NoError(t, err)
		assert.Empty(t, created)
	})

	t.Run("persist failure suppresses broadcast", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		require.NoError(t, registry.Add(staticRule("always")))

		store := &failingStore{MemoryStore: notification.NewMemoryStore(), failInsert: true}
		bc := newRecordingBroadcaster()
		engine, err := rules.NewEngine(registry, store, rules.WithBroadcaster(bc))
		require.NoError(t, err)

		created, err := engine.ProcessEvent(ctx, event.New(event.TypeSearch, "s1"))
		require.NoError(t, err)
		assert.Empty(t, created)
		assert.Zero(t, bc.count(channels.AdminChannel), "broadcast only after persistence succeeds")
	})
}

func TestEngine_RuleIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("panicking rule", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		panicking := staticRule("a-panics")
		panicking.Condition = func(ctx context.Context, ev event.Event) (bool, error) {
			panic("boom")
		}
		require.NoError(t, registry.Add(panicking))
		require.NoError(t, registry.Add(staticRule("b-works")))

		engine, err := rules.NewEngine(registry, notification.NewMemoryStore())
		require.NoError(t, err)

		created, err := engine.ProcessEvent(ctx, event.New(event.TypeSearch, "s1"))
		require.NoError(t, err)
		require.Len(t, created, 1, "healthy rule still fires")
	})

	t.Run("erroring rule", func(t *testing.T) {
		t.Parallel()

		registry := rules.NewRegistry()
		failing := staticRule("a-fails")
		failing.Condition = func(ctx context.Context, ev event.Event) (bool, error) {
			return false, errors.New("counter backend down")
		}
		require.NoError(t, registry.Add(failing))
		require.NoError(t, registry.Add(staticRule("b-works")))

		engine, err := rules.NewEngine(registry, notification.NewMemoryStore())
		require.NoError(t, err)

		created, err := engine.ProcessEvent(ctx, event.New(event.TypeSearch, "s1"))
		require.NoError(t, err)
		require.Len(t, created, 1)
	})
}

func TestEngine_PreferenceGating(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	registry := rules.NewRegistry()
	require.NoError(t, registry.Add(staticRule("always")))

	store := notification.NewMemoryStore()
	require.NoError(t, store.SetPreferences(ctx, "u1", notification.Preferences{
		notification.TypeSearchSpike: false,
	}))

	bc := newRecordingBroadcaster()
	engine, err := rules.NewEngine(registry, store, rules.WithBroadcaster(bc))
	require.NoError(t, err)

	ev := event.New(event.TypeSearch, "s1")
	ev.UserID = "u1"

	created, err := engine.ProcessEvent(ctx, ev)
	require.NoError(t, err)
	assert.Empty(t, created, "opted-out type is suppressed")
	assert.Zero(t, bc.count(channels.AdminChannel))

	// Another user without the opt-out still gets it.
	ev2 := event.New(event.TypeSearch, "s2")
	ev2.UserID = "u2"
	created, err = engine.ProcessEvent(ctx, ev2)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}
