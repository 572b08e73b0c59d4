package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/trendwatch/pkg/channels"
	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
)

// Broadcaster fans a frame out to a channel's subscribers.
// channels.Manager satisfies this interface.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, frame protocol.Frame) error
}

// Engine runs events through the registry's enabled rules, persists the
// resulting notifications, and broadcasts them.
type Engine struct {
	registry    *Registry
	store       notification.Store
	broadcaster Broadcaster
	log         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBroadcaster sets the fan-out target for created notifications.
// Without one the engine only persists.
func WithBroadcaster(b Broadcaster) EngineOption {
	return func(e *Engine) {
		e.broadcaster = b
	}
}

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates a rule engine persisting through store.
func NewEngine(registry *Registry, store notification.Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if registry == nil {
		registry = NewRegistry()
	}

	e := &Engine{
		registry: registry,
		store:    store,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Registry returns the engine's rule registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ProcessEvent evaluates every enabled rule matching the event's type and
// returns the notifications that were created. A failing or panicking rule
// is isolated: it is logged and the remaining rules still evaluate. A
// notification is broadcast only after it persists.
func (e *Engine) ProcessEvent(ctx context.Context, ev event.Event) ([]notification.Notification, error) {
	var created []notification.Notification

	for _, rule := range e.registry.enabledFor(ev.Type) {
		matched, notif, err := e.evaluate(ctx, rule, ev)
		if err != nil {
			e.log.ErrorContext(ctx, "rule evaluation failed",
				slog.String("rule_id", rule.ID),
				logger.EventType(string(ev.Type)),
				slog.String("event_id", ev.ID),
				logger.Error(err),
			)
			continue
		}
		if !matched {
			continue
		}

		if notif.UserID == "" {
			notif.UserID = ev.UserID
		}
		if notif.EventID == "" {
			notif.EventID = ev.ID
		}

		if notif.UserID != "" && !e.wantsType(ctx, notif.UserID, notif.Type) {
			e.log.DebugContext(ctx, "notification suppressed by user preference",
				slog.String("rule_id", rule.ID),
				logger.UserID(notif.UserID),
			)
			continue
		}

		if _, err := e.store.Insert(ctx, notif); err != nil {
			e.log.ErrorContext(ctx, "failed to persist notification",
				slog.String("rule_id", rule.ID),
				slog.String("notification_id", notif.ID),
				logger.Error(err),
			)
			continue
		}

		e.broadcast(ctx, notif)
		created = append(created, notif)
	}

	return created, nil
}

// evaluate runs condition and factory behind a panic guard so one bad rule
// cannot take down the flush loop or starve sibling rules.
func (e *Engine) evaluate(ctx context.Context, rule Rule, ev event.Event) (matched bool, notif notification.Notification, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			err = fmt.Errorf("rule %s panicked: %v", rule.ID, rec)
		}
	}()

	matched, err = rule.Condition(ctx, ev)
	if err != nil || !matched {
		return matched, notification.Notification{}, err
	}

	return true, rule.Build(ev), nil
}

// wantsType checks the user's delivery preferences, failing open when the
// store cannot answer.
func (e *Engine) wantsType(ctx context.Context, userID string, t notification.Type) bool {
	prefs, err := e.store.GetPreferences(ctx, userID)
	if err != nil {
		e.log.WarnContext(ctx, "failed to load preferences, delivering anyway",
			logger.UserID(userID),
			logger.Error(err),
		)
		return true
	}
	return prefs.Enabled(t)
}

// broadcast fans a persisted notification out to the owner's channel when
// there is one, and always to the admin channel.
func (e *Engine) broadcast(ctx context.Context, notif notification.Notification) {
	if e.broadcaster == nil {
		return
	}

	targets := []string{channels.AdminChannel}
	if notif.UserID != "" {
		targets = append([]string{channels.UserChannel(notif.UserID)}, targets...)
	}

	for _, target := range targets {
		frame := protocol.NewFrame(protocol.MessageNotificationUpdate, target, notif)
		if err := e.broadcaster.Broadcast(ctx, target, frame); err != nil {
			e.log.WarnContext(ctx, "notification broadcast failed",
				slog.String("notification_id", notif.ID),
				slog.String("channel", target),
				logger.Error(err),
			)
		}
	}
}
