package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
)

// Authenticator verifies a client-supplied token and resolves the user id.
type Authenticator interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, token string) (string, error)

func (f AuthenticatorFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// Identity is the result of a successful connection attempt. UserID is empty
// for anonymous clients, which are still tracked for quota purposes.
type Identity struct {
	ClientID string
	UserID   string
}

// state is the per-client quota counters. Message counting follows the same
// fixed-window reset-on-stale semantics as window.MemoryCounter.
type state struct {
	messageCount  int
	windowStart   time.Time
	subscriptions int
}

// Gate authenticates clients and enforces message-rate and subscription
// quotas. All methods are safe for concurrent use.
type Gate struct {
	cfg           Config
	authenticator Authenticator
	log           *slog.Logger

	mu     sync.Mutex
	states map[string]*state

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// Option configures a Gate.
type Option func(*Gate)

// WithAuthenticator sets the token verifier. Without one, every token is
// rejected and only anonymous connections succeed.
func WithAuthenticator(a Authenticator) Option {
	return func(g *Gate) {
		g.authenticator = a
	}
}

// WithLogger sets the logger for the gate.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// New creates a gate with the given quota configuration.
func New(cfg Config, opts ...Option) *Gate {
	g := &Gate{
		cfg:       cfg.withDefaults(),
		log:       slog.Default(),
		states:    make(map[string]*state),
		stopSweep: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.cfg.SweepInterval > 0 {
		go g.sweepLoop()
	}

	return g
}

// Authenticate admits a connection attempt. Every admitted client gets a
// fresh client id. A supplied token must verify or the attempt is rejected;
// no token yields an anonymous identity that is still quota-tracked.
func (g *Gate) Authenticate(ctx context.Context, token string) (Identity, error) {
	id := Identity{ClientID: uuid.New().String()}

	if token != "" {
		if g.authenticator == nil {
			return Identity{}, ErrAuthenticationFailed
		}
		userID, err := g.authenticator.Verify(ctx, token)
		if err != nil {
			g.log.WarnContext(ctx, "token verification failed", logger.Error(err))
			return Identity{}, errors.Join(ErrAuthenticationFailed, err)
		}
		id.UserID = userID
	}

	g.mu.Lock()
	g.states[id.ClientID] = &state{windowStart: time.Now()}
	g.mu.Unlock()

	return id, nil
}

// Deregister drops a client's quota state on disconnect.
func (g *Gate) Deregister(clientID string) {
	g.mu.Lock()
	delete(g.states, clientID)
	g.mu.Unlock()
}

// Allow meters one inbound message for the client at the given time.
// It returns nil when the message is within quota, or a *Rejection carrying
// CodeRateLimitExceeded when the fixed window is exhausted. The window
// resets automatically once stale.
func (g *Gate) Allow(clientID string, now time.Time) *Rejection {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.stateLocked(clientID, now)
	if now.Sub(st.windowStart) > g.cfg.MessageWindow {
		st.messageCount = 0
		st.windowStart = now
	}

	st.messageCount++
	if st.messageCount > g.cfg.MaxMessages {
		return &Rejection{
			Code: protocol.CodeRateLimitExceeded,
			Message: fmt.Sprintf("message rate limit of %d per %s exceeded",
				g.cfg.MaxMessages, g.cfg.MessageWindow),
		}
	}
	return nil
}

// AllowSubscription checks the concurrent-subscription cap without
// consuming it. Callers pair it with AddSubscription on success.
func (g *Gate) AllowSubscription(clientID string) *Rejection {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.stateLocked(clientID, time.Now())
	if st.subscriptions >= g.cfg.MaxSubscriptions {
		return &Rejection{
			Code: protocol.CodeMaxSubscriptionsExceeded,
			Message: fmt.Sprintf("subscription limit of %d exceeded",
				g.cfg.MaxSubscriptions),
		}
	}
	return nil
}

// AddSubscription records a granted subscription. Kept symmetric with
// RemoveSubscription by the caller, mirroring channel manager subscribe and
// unsubscribe calls.
func (g *Gate) AddSubscription(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stateLocked(clientID, time.Now()).subscriptions++
}

// RemoveSubscription releases a subscription slot.
func (g *Gate) RemoveSubscription(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.stateLocked(clientID, time.Now())
	if st.subscriptions > 0 {
		st.subscriptions--
	}
}

// SubscriptionCount returns the client's current subscription count.
func (g *Gate) SubscriptionCount(clientID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[clientID]
	if !ok {
		return 0
	}
	return st.subscriptions
}

// TrackedClients returns how many clients currently have quota state.
func (g *Gate) TrackedClients() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.states)
}

// Sweep reclaims quota state for clients whose window went stale and that
// hold no subscriptions. Disconnect cleanup is synchronous via Deregister;
// this is a safety net for leaked entries.
func (g *Gate) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for clientID, st := range g.states {
		if st.subscriptions == 0 && now.Sub(st.windowStart) > g.cfg.MessageWindow {
			delete(g.states, clientID)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (g *Gate) Close() {
	g.stopOnce.Do(func() {
		close(g.stopSweep)
	})
}

// stateLocked fetches or lazily creates quota state. Caller must hold g.mu.
func (g *Gate) stateLocked(clientID string, now time.Time) *state {
	st, ok := g.states[clientID]
	if !ok {
		st = &state{windowStart: now}
		g.states[clientID] = st
	}
	return st
}

func (g *Gate) sweepLoop() {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Sweep(time.Now())
		case <-g.stopSweep:
			return
		}
	}
}
