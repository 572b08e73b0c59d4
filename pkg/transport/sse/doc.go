// Package sse exposes the pipeline's control plane over HTTP using
// server-sent events for the outbound direction.
//
// A client opens GET /stream (optionally with a bearer token) and receives
// a connect frame carrying its client id, followed by every frame broadcast
// to the channels it subscribes to. Inbound control messages are POSTed to
// /clients/{clientID}/messages; violations come back as error frames on the
// client's stream, matching the behavior of a bidirectional socket.
//
// The Transport type implements channels.Transport with a buffered queue
// per client. A client that cannot keep up has frames dropped rather than
// stalling the broadcast loop.
package sse
