package sse

import (
	"context"
	"sync"

	"github.com/dmitrymomot/trendwatch/pkg/gate"
)

const defaultQueueSize = 64

// session is one connected client: its identity, its outbound queue, and a
// done signal for server-initiated teardown. The queue is never closed so a
// concurrent Send can never panic; readers stop on done instead.
type session struct {
	identity gate.Identity
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

func (s *session) stop() {
	s.once.Do(func() { close(s.done) })
}

// Transport routes broadcast payloads to per-client outbound queues. It
// implements channels.Transport.
type Transport struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	queueSize int
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithQueueSize sets the per-client outbound queue capacity.
func WithQueueSize(n int) TransportOption {
	return func(t *Transport) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// NewTransport creates an empty transport.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		sessions:  make(map[string]*session),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// attach creates the outbound queue for a freshly connected client.
func (t *Transport) attach(id gate.Identity) *session {
	s := &session{
		identity: id,
		out:      make(chan []byte, t.queueSize),
		done:     make(chan struct{}),
	}
	t.mu.Lock()
	t.sessions[id.ClientID] = s
	t.mu.Unlock()
	return s
}

// detach removes the client's queue and signals its stream loop to stop.
func (t *Transport) detach(clientID string) {
	t.mu.Lock()
	s, ok := t.sessions[clientID]
	if ok {
		delete(t.sessions, clientID)
	}
	t.mu.Unlock()
	if ok {
		s.stop()
	}
}

// lookup returns the session for a client id.
func (t *Transport) lookup(clientID string) (*session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[clientID]
	return s, ok
}

// Send queues one payload for a client. A missing client or a full queue is
// reported to the caller; neither blocks the broadcast loop.
func (t *Transport) Send(ctx context.Context, clientID string, payload []byte) error {
	s, ok := t.lookup(clientID)
	if !ok {
		return ErrClientGone
	}

	select {
	case s.out <- payload:
		return nil
	default:
		return ErrClientStalled
	}
}

// CloseAll detaches every client, ending all open streams. Used on
// shutdown so the HTTP server can drain.
func (t *Transport) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sessions {
		s.stop()
		delete(t.sessions, id)
	}
}

// Connected reports how many streams are currently attached.
func (t *Transport) Connected() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
