package channels

import "github.com/dmitrymomot/trendwatch/pkg/event"

// Well-known channel names.
const (
	// AdminChannel receives every notification produced by the rule engine.
	AdminChannel = "notifications:admin"

	// AnalyticsChannel receives every ingested analytics event.
	AnalyticsChannel = "analytics"

	AnalyticsSearch   = "analytics:search"
	AnalyticsFilters  = "analytics:filters"
	AnalyticsListings = "analytics:listings"
	AnalyticsSessions = "analytics:user_sessions"
)

// UserChannel returns the per-user notification channel name.
func UserChannel(userID string) string {
	return "notifications:user:" + userID
}

// analyticsRoutes maps event types to their type-specific sub-channels.
// New event types get routed by adding a row here; the dispatch loop in
// BroadcastAnalyticsEvent never changes.
var analyticsRoutes = map[event.Type][]string{
	event.TypeSearch:       {AnalyticsSearch},
	event.TypeFilterApply:  {AnalyticsFilters},
	event.TypeListingView:  {AnalyticsListings},
	event.TypeListingClick: {AnalyticsListings},
	event.TypeSessionStart: {AnalyticsSessions},
	event.TypeSessionEnd:   {AnalyticsSessions},
}
