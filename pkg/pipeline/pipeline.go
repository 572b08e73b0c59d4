package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/trendwatch/pkg/channels"
	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/eventqueue"
	"github.com/dmitrymomot/trendwatch/pkg/gate"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
	"github.com/dmitrymomot/trendwatch/pkg/rules"
	"github.com/dmitrymomot/trendwatch/pkg/window"
)

// Config tunes the pipeline's subsystems. Zero values fall back to each
// subsystem's documented defaults.
type Config struct {
	Queue   eventqueue.Config
	Gate    gate.Config
	Catalog rules.Catalog
}

// Deps are the external dependencies a pipeline is built on. Events,
// Notifications, Counters, and Transport are required; Authenticator is
// optional and its absence means token-bearing connections are rejected.
type Deps struct {
	Events        eventqueue.EventStore
	Notifications notification.Store
	Counters      window.CounterStore
	Transport     channels.Transport
	Authenticator gate.Authenticator
}

// Pipeline owns the event path from ingestion to delivery.
type Pipeline struct {
	queue         *eventqueue.Queue
	engine        *rules.Engine
	manager       *channels.Manager
	gate          *gate.Gate
	notifications notification.Store
	counters      window.CounterStore
	log           *slog.Logger
	closed        atomic.Bool
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// New assembles a pipeline: registry with the built-in rules, channel
// manager over the given transport, rule engine broadcasting through the
// manager, ingestion queue feeding the engine, and the connection gate.
func New(cfg Config, deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.Events == nil || deps.Notifications == nil || deps.Counters == nil || deps.Transport == nil {
		return nil, ErrNilDependency
	}

	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Catalog == (rules.Catalog{}) {
		cfg.Catalog = rules.DefaultCatalog()
	}

	registry := rules.NewRegistry()
	if err := rules.RegisterBuiltins(registry, deps.Counters, cfg.Catalog); err != nil {
		return nil, err
	}

	manager, err := channels.NewManager(deps.Transport, channels.WithLogger(o.log))
	if err != nil {
		return nil, err
	}

	engine, err := rules.NewEngine(registry, deps.Notifications,
		rules.WithBroadcaster(manager),
		rules.WithEngineLogger(o.log),
	)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		engine:        engine,
		manager:       manager,
		notifications: deps.Notifications,
		counters:      deps.Counters,
		log:           o.log,
	}

	p.queue, err = eventqueue.New(deps.Events, cfg.Queue,
		eventqueue.WithProcessor(eventqueue.ProcessorFunc(p.processEvent)),
		eventqueue.WithLogger(o.log),
	)
	if err != nil {
		return nil, err
	}

	gateOpts := []gate.Option{gate.WithLogger(o.log)}
	if deps.Authenticator != nil {
		gateOpts = append(gateOpts, gate.WithAuthenticator(deps.Authenticator))
	}
	p.gate = gate.New(cfg.Gate, gateOpts...)

	return p, nil
}

// processEvent runs one persisted event through the rule engine and then
// rebroadcasts it on the analytics channels. Rule evaluation errors are
// already isolated per rule inside the engine; a store failure here is
// logged and must not break the flush loop.
func (p *Pipeline) processEvent(ctx context.Context, ev event.Event) error {
	if _, err := p.engine.ProcessEvent(ctx, ev); err != nil {
		p.log.ErrorContext(ctx, "rule evaluation failed",
			logger.EventType(string(ev.Type)),
			slog.String("event_id", ev.ID),
			logger.Error(err),
		)
	}
	return p.manager.BroadcastAnalyticsEvent(ctx, ev)
}

// Ingest validates and buffers one event. Missing ids and timestamps are
// stamped here so producers can send minimal payloads.
func (p *Pipeline) Ingest(ctx context.Context, ev event.Event) error {
	if p.closed.Load() {
		return ErrShuttingDown
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	return p.queue.Enqueue(ctx, ev)
}

// Connect admits a client connection: the gate authenticates the token and
// allocates a client id, then the channel manager registers the client.
func (p *Pipeline) Connect(ctx context.Context, token string) (gate.Identity, error) {
	id, err := p.gate.Authenticate(ctx, token)
	if err != nil {
		return gate.Identity{}, err
	}

	if err := p.manager.RegisterClient(id.ClientID, id.UserID); err != nil {
		p.gate.Deregister(id.ClientID)
		return gate.Identity{}, err
	}

	return id, nil
}

// Disconnect tears a client down: subscriptions, routing state, and quota
// state are all released synchronously.
func (p *Pipeline) Disconnect(clientID string) {
	if err := p.manager.UnregisterClient(clientID); err != nil {
		p.log.Warn("unregister on disconnect failed",
			logger.ClientID(clientID), logger.Error(err))
	}
	p.gate.Deregister(clientID)
}

// notificationUpdate is the inbound payload of a notification_update
// message: either one notification id or all=true.
type notificationUpdate struct {
	NotificationID string `json:"notification_id"`
	All            bool   `json:"all"`
}

// HandleMessage runs one inbound control-plane message through the gate and
// the protocol. The returned frame, when non-nil, must be delivered back to
// the sending client; nil means the message was handled silently.
func (p *Pipeline) HandleMessage(ctx context.Context, id gate.Identity, raw []byte) *protocol.Frame {
	if rej := p.gate.Allow(id.ClientID, time.Now()); rej != nil {
		frame := protocol.NewErrorFrame(rej.Code, rej.Message)
		return &frame
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		code := protocol.CodeMessageProcessingError
		if errors.Is(err, protocol.ErrUnknownMessageType) {
			code = protocol.CodeUnknownMessageType
		}
		frame := protocol.NewErrorFrame(code, err.Error())
		return &frame
	}

	switch msg.Type {
	case protocol.MessageSubscribe:
		return p.handleSubscribe(id.ClientID, msg.Channel)

	case protocol.MessageUnsubscribe:
		return p.handleUnsubscribe(id.ClientID, msg.Channel)

	case protocol.MessageNotificationUpdate:
		return p.handleNotificationUpdate(ctx, id, msg.Payload)

	case protocol.MessageDisconnect:
		p.Disconnect(id.ClientID)
		return nil

	case protocol.MessageConnect, protocol.MessageError:
		// Connect is handled by the transport before messages flow; an
		// error frame from a client carries nothing to act on.
		return nil
	}

	frame := protocol.NewErrorFrame(protocol.CodeUnknownMessageType, "unhandled message type")
	return &frame
}

func (p *Pipeline) handleSubscribe(clientID, channel string) *protocol.Frame {
	if channel == "" {
		frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "subscribe requires a channel")
		return &frame
	}

	if rej := p.gate.AllowSubscription(clientID); rej != nil {
		frame := protocol.NewErrorFrame(rej.Code, rej.Message)
		return &frame
	}

	changed, err := p.manager.Subscribe(clientID, channel)
	if err != nil {
		frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, err.Error())
		return &frame
	}
	// Quota tracks channel membership, so a repeat subscribe costs nothing.
	if changed {
		p.gate.AddSubscription(clientID)
	}
	return nil
}

func (p *Pipeline) handleUnsubscribe(clientID, channel string) *protocol.Frame {
	if channel == "" {
		frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "unsubscribe requires a channel")
		return &frame
	}

	changed, err := p.manager.Unsubscribe(clientID, channel)
	if err != nil {
		frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, err.Error())
		return &frame
	}
	// Only membership the client actually held frees a quota slot, so
	// unsubscribing from never-joined channels cannot drain the counter.
	if changed {
		p.gate.RemoveSubscription(clientID)
	}
	return nil
}

func (p *Pipeline) handleNotificationUpdate(ctx context.Context, id gate.Identity, payload json.RawMessage) *protocol.Frame {
	if id.UserID == "" {
		frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "notification updates require an authenticated user")
		return &frame
	}

	var upd notificationUpdate
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &upd); err != nil {
			frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "malformed notification_update payload")
			return &frame
		}
	}

	switch {
	case upd.All:
		if _, err := p.notifications.MarkAllRead(ctx, id.UserID); err != nil {
			frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "failed to mark notifications read")
			return &frame
		}
	case upd.NotificationID != "":
		if _, err := p.notifications.MarkRead(ctx, upd.NotificationID, id.UserID); err != nil {
			frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "failed to mark notification read")
			return &frame
		}
	default:
		frame := protocol.NewErrorFrame(protocol.CodeMessageProcessingError, "notification_update requires notification_id or all")
		return &frame
	}
	return nil
}

// Registry exposes the rule registry for runtime rule management.
func (p *Pipeline) Registry() *rules.Registry {
	return p.engine.Registry()
}

// Flush forces a queue flush; useful for tests and admin endpoints.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.queue.Flush(ctx)
}

// Stats is a point-in-time snapshot of pipeline health.
type Stats struct {
	Clients        int              `json:"clients"`
	TrackedClients int              `json:"tracked_clients"`
	QueueLen       int              `json:"queue_len"`
	QueueDropped   uint64           `json:"queue_dropped"`
	Rules          []rules.RuleInfo `json:"rules"`
}

// Stats reports connection, queue, and rule state.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Clients:        p.manager.ClientCount(),
		TrackedClients: p.gate.TrackedClients(),
		QueueLen:       p.queue.Len(),
		QueueDropped:   p.queue.Dropped(),
		Rules:          p.engine.Registry().List(),
	}
}

// Shutdown drains the pipeline: intake stops, the queue performs a final
// flush, and the channel manager and gate release their state. Safe to call
// once; the context bounds the drain.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := p.queue.Close(ctx)
	if cerr := p.manager.Close(); err == nil {
		err = cerr
	}
	p.gate.Close()
	if closer, ok := p.counters.(interface{ Close() }); ok {
		closer.Close()
	}
	return err
}
