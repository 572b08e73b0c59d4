// Package gate guards the client-facing side of the pipeline: it
// authenticates connection attempts and enforces per-client quotas on
// message rate and concurrent subscriptions.
//
// Quota state uses the same fixed-window semantics as package window but is
// tracked separately on purpose: it meters connections, not business events,
// and the two must not share failure or sweep behavior.
//
// Violations are never silent. Allow and AllowSubscription return a
// *Rejection carrying a protocol error code so callers can send the client
// an explicit error frame.
package gate
