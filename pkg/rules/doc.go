// Package rules evaluates behavioral events against registered notification
// rules and turns matches into persisted, broadcast notifications.
//
// A rule is an explicit struct, not a closure: stateful rules hold a
// reference to a shared window.CounterStore passed in at construction so all
// concurrent access to counting state goes through one auditable, lock-
// protected store. Rules can be registered, removed, enabled, and disabled at
// runtime through the Registry.
//
// The Engine isolates rule evaluation: a rule that returns an error or
// panics is logged and skipped without preventing other rules from seeing
// the same event. Notifications are broadcast only after they persist.
//
// Built-in detection rules (search spikes, filter trends, listing
// popularity, high-value listings, system error rate) are assembled from a
// Catalog whose thresholds and windows can be tuned via YAML.
package rules
