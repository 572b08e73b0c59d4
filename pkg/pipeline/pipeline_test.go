package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trendwatch/pkg/channels"
	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/gate"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/pipeline"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
	"github.com/dmitrymomot/trendwatch/pkg/window"
)

type memEventStore struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *memEventStore) InsertEvents(ctx context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// wireFrame mirrors protocol.Frame on the receiving side, keeping the
// payload raw so each test can decode it into the expected shape.
type wireFrame struct {
	Type    protocol.MessageType `json:"type"`
	Channel string               `json:"channel"`
	Payload json.RawMessage      `json:"payload"`
}

type captureTransport struct {
	mu     sync.Mutex
	frames map[string][]wireFrame
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{frames: make(map[string][]wireFrame)}
}

func (t *captureTransport) Send(ctx context.Context, clientID string, payload []byte) error {
	var frame wireFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames[clientID] = append(t.frames[clientID], frame)
	return nil
}

func (t *captureTransport) framesFor(clientID string) []wireFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]wireFrame(nil), t.frames[clientID]...)
}

type testPipeline struct {
	p         *pipeline.Pipeline
	transport *captureTransport
	events    *memEventStore
	notifs    *notification.MemoryStore
}

func newTestPipeline(t *testing.T, cfg pipeline.Config) *testPipeline {
	t.Helper()

	tp := &testPipeline{
		transport: newCaptureTransport(),
		events:    &memEventStore{},
		notifs:    notification.NewMemoryStore(),
	}

	counters := window.NewMemoryCounter(window.WithSweepInterval(0))
	t.Cleanup(counters.Close)

	p, err := pipeline.New(cfg, pipeline.Deps{
		Events:        tp.events,
		Notifications: tp.notifs,
		Counters:      counters,
		Transport:     tp.transport,
		Authenticator: gate.AuthenticatorFunc(func(ctx context.Context, token string) (string, error) {
			if token == "valid-token" {
				return "user-1", nil
			}
			return "", fmt.Errorf("unknown token")
		}),
	})
	require.NoError(t, err)
	tp.p = p
	return tp
}

func searchEvent(query string) event.Event {
	return event.Event{
		Type:        event.TypeSearch,
		SessionID:   "session-1",
		SearchQuery: query,
	}
}

func subscribeRaw(channel string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"type":      "subscribe",
		"channel":   channel,
		"timestamp": time.Now(),
	})
	return raw
}

func unsubscribeRaw(channel string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"type":    "unsubscribe",
		"channel": channel,
	})
	return raw
}

func TestPipelineSearchSpikeEndToEnd(t *testing.T) {
	t.Parallel()

	t.Run("ten searches produce exactly one spike notification", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		ctx := context.Background()

		admin, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)
		require.Nil(t, tp.p.HandleMessage(ctx, admin, subscribeRaw(channels.AdminChannel)))

		for range 10 {
			require.NoError(t, tp.p.Ingest(ctx, searchEvent("wedding dress")))
		}
		require.NoError(t, tp.p.Flush(ctx))

		assert.Equal(t, 10, tp.events.count())

		var spikes []notification.Notification
		for _, frame := range tp.transport.framesFor(admin.ClientID) {
			if frame.Type != protocol.MessageNotificationUpdate || frame.Channel != channels.AdminChannel {
				continue
			}
			var n notification.Notification
			require.NoError(t, json.Unmarshal(frame.Payload, &n))
			if n.Type == notification.TypeSearchSpike {
				spikes = append(spikes, n)
			}
		}
		require.Len(t, spikes, 1)
		assert.Equal(t, notification.PriorityHigh, spikes[0].Priority)
		assert.EqualValues(t, 10, spikes[0].Metadata["count"])
	})

	t.Run("nine searches produce no notification", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		ctx := context.Background()

		admin, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)
		require.Nil(t, tp.p.HandleMessage(ctx, admin, subscribeRaw(channels.AdminChannel)))

		for range 9 {
			require.NoError(t, tp.p.Ingest(ctx, searchEvent("wedding dress")))
		}
		require.NoError(t, tp.p.Flush(ctx))

		for _, frame := range tp.transport.framesFor(admin.ClientID) {
			assert.NotEqual(t, channels.AdminChannel, frame.Channel)
		}
	})

	t.Run("normalized query variants count together", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		ctx := context.Background()

		admin, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)
		require.Nil(t, tp.p.HandleMessage(ctx, admin, subscribeRaw(channels.AdminChannel)))

		for i := range 10 {
			query := "Wedding Dress"
			if i%2 == 0 {
				query = "  wedding dress "
			}
			require.NoError(t, tp.p.Ingest(ctx, searchEvent(query)))
		}
		require.NoError(t, tp.p.Flush(ctx))

		var spikes int
		for _, frame := range tp.transport.framesFor(admin.ClientID) {
			if frame.Type == protocol.MessageNotificationUpdate && frame.Channel == channels.AdminChannel {
				spikes++
			}
		}
		assert.Equal(t, 1, spikes)
	})
}

func TestPipelineAnalyticsBroadcast(t *testing.T) {
	t.Parallel()

	tp := newTestPipeline(t, pipeline.Config{})
	ctx := context.Background()

	watcher, err := tp.p.Connect(ctx, "")
	require.NoError(t, err)
	require.Nil(t, tp.p.HandleMessage(ctx, watcher, subscribeRaw(channels.AnalyticsSearch)))

	other, err := tp.p.Connect(ctx, "")
	require.NoError(t, err)
	require.Nil(t, tp.p.HandleMessage(ctx, other, subscribeRaw(channels.AnalyticsListings)))

	require.NoError(t, tp.p.Ingest(ctx, searchEvent("vintage lamp")))
	require.NoError(t, tp.p.Flush(ctx))

	watcherFrames := tp.transport.framesFor(watcher.ClientID)
	require.Len(t, watcherFrames, 1)
	assert.Equal(t, protocol.MessageAnalyticsEvent, watcherFrames[0].Type)
	assert.Equal(t, channels.AnalyticsSearch, watcherFrames[0].Channel)

	var ev event.Event
	require.NoError(t, json.Unmarshal(watcherFrames[0].Payload, &ev))
	assert.Equal(t, "vintage lamp", ev.SearchQuery)

	assert.Empty(t, tp.transport.framesFor(other.ClientID))
}

func TestPipelineConnect(t *testing.T) {
	t.Parallel()

	t.Run("token yields user identity", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		id, err := tp.p.Connect(context.Background(), "valid-token")
		require.NoError(t, err)
		assert.NotEmpty(t, id.ClientID)
		assert.Equal(t, "user-1", id.UserID)
	})

	t.Run("bad token is rejected", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		_, err := tp.p.Connect(context.Background(), "bad-token")
		assert.ErrorIs(t, err, gate.ErrAuthenticationFailed)
	})

	t.Run("anonymous connect is admitted and tracked", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		id, err := tp.p.Connect(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, id.UserID)

		stats := tp.p.Stats()
		assert.Equal(t, 1, stats.Clients)
		assert.Equal(t, 1, stats.TrackedClients)
	})

	t.Run("disconnect releases all state", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		ctx := context.Background()

		id, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)
		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsChannel)))

		tp.p.Disconnect(id.ClientID)

		stats := tp.p.Stats()
		assert.Zero(t, stats.Clients)
		assert.Zero(t, stats.TrackedClients)
	})
}

func TestPipelineHandleMessage(t *testing.T) {
	t.Parallel()

	t.Run("malformed json gets processing error", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		id, err := tp.p.Connect(context.Background(), "")
		require.NoError(t, err)

		frame := tp.p.HandleMessage(context.Background(), id, []byte("{not json"))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeMessageProcessingError, payload.Code)
	})

	t.Run("unknown type gets dedicated error code", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		id, err := tp.p.Connect(context.Background(), "")
		require.NoError(t, err)

		frame := tp.p.HandleMessage(context.Background(), id, []byte(`{"type":"bogus"}`))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeUnknownMessageType, payload.Code)
	})

	t.Run("rate limit rejects excess messages", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{
			Gate: gate.Config{MaxMessages: 2, MessageWindow: time.Minute},
		})
		ctx := context.Background()
		id, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)

		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsChannel)))
		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsSearch)))

		frame := tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsFilters))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeRateLimitExceeded, payload.Code)
	})

	t.Run("subscription cap rejects further subscribes", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{
			Gate: gate.Config{MaxSubscriptions: 1},
		})
		ctx := context.Background()
		id, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)

		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsChannel)))

		frame := tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsSearch))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeMaxSubscriptionsExceeded, payload.Code)

		// Unsubscribing frees the slot again.
		require.Nil(t, tp.p.HandleMessage(ctx, id, unsubscribeRaw(channels.AnalyticsChannel)))
		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsSearch)))
	})

	t.Run("unsubscribing never-joined channels does not free quota", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{
			Gate: gate.Config{MaxSubscriptions: 2},
		})
		ctx := context.Background()
		id, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)

		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsChannel)))
		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsSearch)))

		for _, ghost := range []string{"analytics:ghost-1", "analytics:ghost-2", "analytics:ghost-3"} {
			require.Nil(t, tp.p.HandleMessage(ctx, id, unsubscribeRaw(ghost)))
		}

		frame := tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsFilters))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeMaxSubscriptionsExceeded, payload.Code)

		// A channel the client really holds still frees its slot.
		require.Nil(t, tp.p.HandleMessage(ctx, id, unsubscribeRaw(channels.AnalyticsSearch)))
		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsFilters)))
	})

	t.Run("repeat subscribes to one channel use a single slot", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{
			Gate: gate.Config{MaxSubscriptions: 2},
		})
		ctx := context.Background()
		id, err := tp.p.Connect(ctx, "")
		require.NoError(t, err)

		for range 3 {
			require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsChannel)))
		}

		require.Nil(t, tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsSearch)))

		frame := tp.p.HandleMessage(ctx, id, subscribeRaw(channels.AnalyticsFilters))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeMaxSubscriptionsExceeded, payload.Code)
	})

	t.Run("subscribe without channel is rejected", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		id, err := tp.p.Connect(context.Background(), "")
		require.NoError(t, err)

		frame := tp.p.HandleMessage(context.Background(), id, []byte(`{"type":"subscribe"}`))
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeMessageProcessingError, payload.Code)
	})

	t.Run("notification_update marks read for its owner", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		ctx := context.Background()

		id, err := tp.p.Connect(ctx, "valid-token")
		require.NoError(t, err)

		n := notification.New(notification.TypeSearchSpike, notification.PriorityHigh, "t", "m")
		n.UserID = "user-1"
		notifID, err := tp.notifs.Insert(ctx, n)
		require.NoError(t, err)

		raw, _ := json.Marshal(map[string]any{
			"type":    "notification_update",
			"payload": map[string]any{"notification_id": notifID},
		})
		require.Nil(t, tp.p.HandleMessage(ctx, id, raw))

		unread, err := tp.notifs.CountUnread(ctx, "user-1")
		require.NoError(t, err)
		assert.Zero(t, unread)
	})

	t.Run("notification_update from anonymous client is rejected", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		id, err := tp.p.Connect(context.Background(), "")
		require.NoError(t, err)

		raw, _ := json.Marshal(map[string]any{
			"type":    "notification_update",
			"payload": map[string]any{"all": true},
		})
		frame := tp.p.HandleMessage(context.Background(), id, raw)
		require.NotNil(t, frame)
		payload, ok := frame.Payload.(protocol.ErrorPayload)
		require.True(t, ok)
		assert.Equal(t, protocol.CodeMessageProcessingError, payload.Code)
	})
}

func TestPipelineIngest(t *testing.T) {
	t.Parallel()

	t.Run("stamps missing id and timestamp", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		ctx := context.Background()

		require.NoError(t, tp.p.Ingest(ctx, searchEvent("lamp")))
		require.NoError(t, tp.p.Flush(ctx))

		tp.events.mu.Lock()
		defer tp.events.mu.Unlock()
		require.Len(t, tp.events.events, 1)
		assert.NotEmpty(t, tp.events.events[0].ID)
		assert.False(t, tp.events.events[0].Timestamp.IsZero())
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		t.Parallel()

		tp := newTestPipeline(t, pipeline.Config{})
		err := tp.p.Ingest(context.Background(), event.Event{Type: event.TypeSearch})
		assert.ErrorIs(t, err, event.ErrMissingSession)
	})
}

func TestPipelineShutdown(t *testing.T) {
	t.Parallel()

	tp := newTestPipeline(t, pipeline.Config{})
	ctx := context.Background()

	require.NoError(t, tp.p.Ingest(ctx, searchEvent("lamp")))
	require.NoError(t, tp.p.Shutdown(ctx))

	// Buffered events are flushed on the way down.
	assert.Equal(t, 1, tp.events.count())

	assert.ErrorIs(t, tp.p.Ingest(ctx, searchEvent("lamp")), pipeline.ErrShuttingDown)

	// Second shutdown is a no-op.
	assert.NoError(t, tp.p.Shutdown(ctx))
}
