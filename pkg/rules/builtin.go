package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/window"
)

// Built-in rule ids.
const (
	RuleSearchSpike       = "search-spike"
	RuleFilterTrend       = "filter-trend"
	RuleListingPopularity = "listing-popularity"
	RuleHighValueListing  = "high-value-listing"
	RuleSystemErrorRate   = "system-error-rate"
)

// SearchSpikeRule fires when the same normalized search term is seen
// Threshold times within the window. It fires exactly once per window, at
// the moment the count reaches the threshold.
func SearchSpikeRule(counters window.CounterStore, cfg WindowedRuleConfig) Rule {
	return Rule{
		ID:         RuleSearchSpike,
		Name:       "Search term spike",
		EventTypes: []event.Type{event.TypeSearch},
		Condition: func(ctx context.Context, ev event.Event) (bool, error) {
			term := strings.ToLower(strings.TrimSpace(ev.SearchQuery))
			if term == "" {
				return false, nil
			}
			count, err := counters.Increment(ctx, "search:"+term, ev.Timestamp, cfg.Window.Std())
			if err != nil {
				return false, err
			}
			return count == cfg.Threshold, nil
		},
		Build: func(ev event.Event) notification.Notification {
			term := strings.ToLower(strings.TrimSpace(ev.SearchQuery))
			n := notification.New(
				notification.TypeSearchSpike,
				notification.PriorityHigh,
				"Search spike detected",
				fmt.Sprintf("%d searches for %q within %s", cfg.Threshold, term, cfg.Window.Std()),
			)
			n.Metadata = map[string]any{
				"count":  cfg.Threshold,
				"query":  term,
				"window": cfg.Window.Std().String(),
			}
			return n
		},
	}
}

// FilterTrendRule fires when the same filter type and value combination is
// applied Threshold times within the window.
func FilterTrendRule(counters window.CounterStore, cfg WindowedRuleConfig) Rule {
	return Rule{
		ID:         RuleFilterTrend,
		Name:       "Filter usage trend",
		EventTypes: []event.Type{event.TypeFilterApply},
		Condition: func(ctx context.Context, ev event.Event) (bool, error) {
			if ev.FilterType == "" {
				return false, nil
			}
			count, err := counters.Increment(ctx, filterKey(ev), ev.Timestamp, cfg.Window.Std())
			if err != nil {
				return false, err
			}
			return count == cfg.Threshold, nil
		},
		Build: func(ev event.Event) notification.Notification {
			n := notification.New(
				notification.TypeFilterTrend,
				notification.PriorityMedium,
				"Filter trend detected",
				fmt.Sprintf("filter %s applied %d times within %s", ev.FilterType, cfg.Threshold, cfg.Window.Std()),
			)
			n.Metadata = map[string]any{
				"count":        cfg.Threshold,
				"filter_type":  ev.FilterType,
				"filter_value": ev.FilterValue,
				"window":       cfg.Window.Std().String(),
			}
			return n
		},
	}
}

// filterKey builds the counter key filterType:JSON(filterValue). Marshal
// failure falls back to the bare filter type so counting still works.
func filterKey(ev event.Event) string {
	raw, err := json.Marshal(ev.FilterValue)
	if err != nil {
		return "filter:" + ev.FilterType
	}
	return "filter:" + ev.FilterType + ":" + string(raw)
}

// ListingPopularityRule fires when one listing is viewed Threshold times
// within the window.
func ListingPopularityRule(counters window.CounterStore, cfg WindowedRuleConfig) Rule {
	return Rule{
		ID:         RuleListingPopularity,
		Name:       "Listing popularity",
		EventTypes: []event.Type{event.TypeListingView},
		Condition: func(ctx context.Context, ev event.Event) (bool, error) {
			if ev.ListingID == "" {
				return false, nil
			}
			count, err := counters.Increment(ctx, "listing:"+ev.ListingID, ev.Timestamp, cfg.Window.Std())
			if err != nil {
				return false, err
			}
			return count == cfg.Threshold, nil
		},
		Build: func(ev event.Event) notification.Notification {
			n := notification.New(
				notification.TypeListingPopularity,
				notification.PriorityMedium,
				"Listing gaining traction",
				fmt.Sprintf("listing %s viewed %d times within %s", ev.ListingID, cfg.Threshold, cfg.Window.Std()),
			)
			n.Metadata = map[string]any{
				"count":      cfg.Threshold,
				"listing_id": ev.ListingID,
				"window":     cfg.Window.Std().String(),
			}
			return n
		},
	}
}

// HighValueListingRule fires on every view of a listing priced at or above
// MinPrice. Stateless.
func HighValueListingRule(cfg HighValueConfig) Rule {
	return Rule{
		ID:         RuleHighValueListing,
		Name:       "High-value listing viewed",
		EventTypes: []event.Type{event.TypeListingView},
		Condition: func(ctx context.Context, ev event.Event) (bool, error) {
			price, ok := ev.MetaFloat("price")
			return ok && price >= cfg.MinPrice, nil
		},
		Build: func(ev event.Event) notification.Notification {
			price, _ := ev.MetaFloat("price")
			n := notification.New(
				notification.TypeHighValueListing,
				notification.PriorityHigh,
				"High-value listing viewed",
				fmt.Sprintf("listing %s priced at %.2f was viewed", ev.ListingID, price),
			)
			n.Metadata = map[string]any{
				"listing_id": ev.ListingID,
				"price":      price,
			}
			return n
		},
	}
}

// SystemErrorRateRule fires when a system error event reports an error count
// at or above the threshold. Stateless.
func SystemErrorRateRule(cfg ErrorRateConfig) Rule {
	return Rule{
		ID:         RuleSystemErrorRate,
		Name:       "System error rate",
		EventTypes: []event.Type{event.TypeSystemError},
		Condition: func(ctx context.Context, ev event.Event) (bool, error) {
			count, ok := ev.MetaFloat("error_count")
			return ok && int(count) >= cfg.Threshold, nil
		},
		Build: func(ev event.Event) notification.Notification {
			count, _ := ev.MetaFloat("error_count")
			n := notification.New(
				notification.TypeSystemErrorRate,
				notification.PriorityCritical,
				"Elevated system error rate",
				fmt.Sprintf("%d errors reported", int(count)),
			)
			n.Metadata = map[string]any{
				"error_count": int(count),
			}
			return n
		},
	}
}

// RegisterBuiltins adds the built-in rules to the registry with the
// catalog's tuning; rules disabled in the catalog are registered disabled so
// they can be enabled at runtime.
func RegisterBuiltins(registry *Registry, counters window.CounterStore, catalog Catalog) error {
	builtins := []struct {
		rule    Rule
		enabled bool
	}{
		{SearchSpikeRule(counters, catalog.SearchSpike), catalog.SearchSpike.Enabled},
		{FilterTrendRule(counters, catalog.FilterTrend), catalog.FilterTrend.Enabled},
		{ListingPopularityRule(counters, catalog.ListingPopularity), catalog.ListingPopularity.Enabled},
		{HighValueListingRule(catalog.HighValueListing), catalog.HighValueListing.Enabled},
		{SystemErrorRateRule(catalog.SystemErrorRate), catalog.SystemErrorRate.Enabled},
	}

	for _, b := range builtins {
		if err := registry.Add(b.rule); err != nil {
			return err
		}
		if !b.enabled {
			registry.Disable(b.rule.ID)
		}
	}
	return nil
}
