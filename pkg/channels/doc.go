// Package channels manages connected clients, their channel subscriptions,
// and message fan-out to subscribers.
//
// Channels are pure routing state: named broadcast groups rebuilt from
// subscribe calls after a restart, never persisted. The manager keeps the
// client-to-channels and channel-to-clients indices consistent under a single
// lock, so no observer ever sees one side updated without the other.
// Fan-out is best effort; a failed send to one client is logged and the loop
// continues with the rest.
package channels
