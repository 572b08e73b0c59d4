package channels

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
)

// Transport delivers encoded frames to a single connected client.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, clientID string, payload []byte) error
}

// client tracks one connected client and its subscriptions.
type client struct {
	id            string
	userID        string
	subscriptions map[string]struct{}
	lastActivity  time.Time
}

// Manager is the client registry and broadcast fan-out.
// A single lock guards both the client index and the channel membership
// index so the two always change together.
type Manager struct {
	transport Transport
	log       *slog.Logger

	mu       sync.RWMutex
	clients  map[string]*client
	channels map[string]map[string]struct{} // channel -> set of client ids
	closed   bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a channel manager delivering through transport.
func NewManager(transport Transport, opts ...ManagerOption) (*Manager, error) {
	if transport == nil {
		return nil, ErrTransportNil
	}

	m := &Manager{
		transport: transport,
		log:       slog.Default(),
		clients:   make(map[string]*client),
		channels:  make(map[string]map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// RegisterClient adds a connected client. userID is empty for anonymous
// clients. Registering an existing id refreshes its activity timestamp.
func (m *Manager) RegisterClient(clientID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	if c, ok := m.clients[clientID]; ok {
		c.lastActivity = time.Now()
		return nil
	}

	m.clients[clientID] = &client{
		id:            clientID,
		userID:        userID,
		subscriptions: make(map[string]struct{}),
		lastActivity:  time.Now(),
	}
	return nil
}

// UnregisterClient removes a client, first unsubscribing it from every
// channel so the membership indices stay consistent.
func (m *Manager) UnregisterClient(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	for ch := range c.subscriptions {
		m.removeMemberLocked(ch, clientID)
	}
	delete(m.clients, clientID)
	return nil
}

// Subscribe adds the client to a channel, updating both indices as a unit.
// The returned bool reports whether membership actually changed; a repeat
// subscribe to a channel the client already holds is a no-op.
func (m *Manager) Subscribe(clientID, channelName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrManagerClosed
	}
	c, ok := m.clients[clientID]
	if !ok {
		return false, ErrClientNotFound
	}

	c.lastActivity = time.Now()
	if _, held := c.subscriptions[channelName]; held {
		return false, nil
	}
	c.subscriptions[channelName] = struct{}{}

	members, ok := m.channels[channelName]
	if !ok {
		members = make(map[string]struct{})
		m.channels[channelName] = members
	}
	members[clientID] = struct{}{}
	return true, nil
}

// Unsubscribe removes the client from a channel. Removing the last member
// reclaims the channel. The returned bool reports whether the client actually
// held the channel; dropping a channel the client never joined is a no-op.
func (m *Manager) Unsubscribe(clientID, channelName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return false, ErrClientNotFound
	}

	c.lastActivity = time.Now()
	if _, held := c.subscriptions[channelName]; !held {
		return false, nil
	}
	delete(c.subscriptions, channelName)
	m.removeMemberLocked(channelName, clientID)
	return true, nil
}

// removeMemberLocked drops a client from a channel's member set and reclaims
// the channel when it empties. Caller must hold m.mu.
func (m *Manager) removeMemberLocked(channelName, clientID string) {
	members, ok := m.channels[channelName]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(m.channels, channelName)
	}
}

// Broadcast delivers a frame to every member of the channel. A channel with
// no members is a no-op. One failed send never aborts delivery to the rest.
func (m *Manager) Broadcast(ctx context.Context, channelName string, frame protocol.Frame) error {
	payload, err := frame.Encode()
	if err != nil {
		return err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	members := make([]string, 0, len(m.channels[channelName]))
	for id := range m.channels[channelName] {
		members = append(members, id)
	}
	m.mu.RUnlock()

	for _, clientID := range members {
		if err := m.transport.Send(ctx, clientID, payload); err != nil {
			m.log.WarnContext(ctx, "failed to deliver to client",
				slog.String("client_id", clientID),
				slog.String("channel", channelName),
				logger.Error(err),
			)
		}
	}
	return nil
}

// BroadcastAnalyticsEvent fans an event out to the general analytics channel
// plus the type-specific sub-channels from the routing table.
func (m *Manager) BroadcastAnalyticsEvent(ctx context.Context, ev event.Event) error {
	targets := append([]string{AnalyticsChannel}, analyticsRoutes[ev.Type]...)

	for _, channelName := range targets {
		frame := protocol.NewFrame(protocol.MessageAnalyticsEvent, channelName, ev)
		if err := m.Broadcast(ctx, channelName, frame); err != nil {
			m.log.WarnContext(ctx, "analytics broadcast failed",
				slog.String("channel", channelName),
				logger.EventType(string(ev.Type)),
				logger.Error(err),
			)
		}
	}
	return nil
}

// Subscriptions returns the channels a client is subscribed to, sorted.
func (m *Manager) Subscriptions(clientID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[clientID]
	if !ok {
		return nil
	}
	subs := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		subs = append(subs, ch)
	}
	sort.Strings(subs)
	return subs
}

// SubscriberCount returns the number of members of a channel.
func (m *Manager) SubscriberCount(channelName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[channelName])
}

// ClientCount returns the number of registered clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close drops every client and channel. Further register, subscribe, and
// broadcast calls fail with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	clear(m.clients)
	clear(m.channels)
	return nil
}
