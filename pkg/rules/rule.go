package rules

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
)

// Condition decides whether an event should produce a notification.
// It must not mutate anything outside the counter keys it declares through
// its rule's counter store.
type Condition func(ctx context.Context, ev event.Event) (bool, error)

// Factory builds the notification for an event that satisfied the condition.
type Factory func(ev event.Event) notification.Notification

// Rule is one detection rule. EventTypes restricts which events the rule
// sees; Condition and Build run only for matching types.
type Rule struct {
	ID         string
	Name       string
	EventTypes []event.Type
	Condition  Condition
	Build      Factory
}

// Validate checks the rule has everything the engine needs.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if len(r.EventTypes) == 0 {
		return fmt.Errorf("%w: at least one event type is required", ErrInvalidRule)
	}
	if r.Condition == nil {
		return fmt.Errorf("%w: condition is required", ErrInvalidRule)
	}
	if r.Build == nil {
		return fmt.Errorf("%w: notification factory is required", ErrInvalidRule)
	}
	return nil
}

// matches reports whether the rule applies to the given event type.
func (r Rule) matches(t event.Type) bool {
	for _, et := range r.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}
