package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trendwatch/pkg/gate"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
)

func testGateConfig() gate.Config {
	return gate.Config{
		MessageWindow:    time.Minute,
		MaxMessages:      3,
		MaxSubscriptions: 2,
		SweepInterval:    -1,
	}
}

func verifier(valid map[string]string) gate.Authenticator {
	return gate.AuthenticatorFunc(func(ctx context.Context, token string) (string, error) {
		userID, ok := valid[token]
		if !ok {
			return "", errors.New("bad token")
		}
		return userID, nil
	})
}

func TestGate_Authenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid token resolves user", func(t *testing.T) {
		t.Parallel()
		g := gate.New(testGateConfig(), gate.WithAuthenticator(verifier(map[string]string{"tok-1": "u1"})))
		defer g.Close()

		id, err := g.Authenticate(ctx, "tok-1")
		require.NoError(t, err)
		assert.NotEmpty(t, id.ClientID)
		assert.Equal(t, "u1", id.UserID)
	})

	t.Run("fresh client id per connection", func(t *testing.T) {
		t.Parallel()
		g := gate.New(testGateConfig(), gate.WithAuthenticator(verifier(map[string]string{"tok-1": "u1"})))
		defer g.Close()

		a, err := g.Authenticate(ctx, "tok-1")
		require.NoError(t, err)
		b, err := g.Authenticate(ctx, "tok-1")
		require.NoError(t, err)
		assert.NotEqual(t, a.ClientID, b.ClientID)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		t.Parallel()
		g := gate.New(testGateConfig(), gate.WithAuthenticator(verifier(nil)))
		defer g.Close()

		_, err := g.Authenticate(ctx, "forged")
		assert.ErrorIs(t, err, gate.ErrAuthenticationFailed)
	})

	t.Run("anonymous connection admitted and tracked", func(t *testing.T) {
		t.Parallel()
		g := gate.New(testGateConfig())
		defer g.Close()

		id, err := g.Authenticate(ctx, "")
		require.NoError(t, err)
		assert.NotEmpty(t, id.ClientID)
		assert.Empty(t, id.UserID)
		assert.Equal(t, 1, g.TrackedClients())
	})

	t.Run("token without authenticator rejected", func(t *testing.T) {
		t.Parallel()
		g := gate.New(testGateConfig())
		defer g.Close()

		_, err := g.Authenticate(ctx, "tok-1")
		assert.ErrorIs(t, err, gate.ErrAuthenticationFailed)
	})
}

func TestGate_RateLimitBoundary(t *testing.T) {
	t.Parallel()

	g := gate.New(testGateConfig())
	defer g.Close()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Exactly MaxMessages accepted within the window.
	for i := range 3 {
		rej := g.Allow("c1", t0.Add(time.Duration(i)*time.Second))
		assert.Nil(t, rej, "message %d should pass", i+1)
	}

	// The next one in the same window is rejected with a structured error.
	rej := g.Allow("c1", t0.Add(4*time.Second))
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeRateLimitExceeded, rej.Code)
	assert.NotEmpty(t, rej.Message)

	// After the window elapses the client is admitted again.
	rej = g.Allow("c1", t0.Add(time.Minute+5*time.Second))
	assert.Nil(t, rej)

	// Other clients are unaffected throughout.
	assert.Nil(t, g.Allow("c2", t0.Add(4*time.Second)))
}

func TestGate_SubscriptionQuota(t *testing.T) {
	t.Parallel()

	g := gate.New(testGateConfig())
	defer g.Close()

	require.Nil(t, g.AllowSubscription("c1"))
	g.AddSubscription("c1")
	require.Nil(t, g.AllowSubscription("c1"))
	g.AddSubscription("c1")

	rej := g.AllowSubscription("c1")
	require.NotNil(t, rej)
	assert.Equal(t, protocol.CodeMaxSubscriptionsExceeded, rej.Code)

	// Unsubscribing frees a slot.
	g.RemoveSubscription("c1")
	assert.Nil(t, g.AllowSubscription("c1"))
	assert.Equal(t, 1, g.SubscriptionCount("c1"))

	// Removal never goes below zero.
	g.RemoveSubscription("c1")
	g.RemoveSubscription("c1")
	assert.Zero(t, g.SubscriptionCount("c1"))
}

func TestGate_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gate.New(testGateConfig())
	defer g.Close()

	idle, err := g.Authenticate(ctx, "")
	require.NoError(t, err)
	subscribed, err := g.Authenticate(ctx, "")
	require.NoError(t, err)
	g.AddSubscription(subscribed.ClientID)
	require.Equal(t, 2, g.TrackedClients())

	g.Sweep(time.Now().Add(2 * time.Minute))

	assert.Equal(t, 1, g.TrackedClients(), "idle client reclaimed, subscribed client kept")
	assert.Equal(t, 1, g.SubscriptionCount(subscribed.ClientID))
	assert.Zero(t, g.SubscriptionCount(idle.ClientID))
}

func TestGate_Deregister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gate.New(testGateConfig())
	defer g.Close()

	id, err := g.Authenticate(ctx, "")
	require.NoError(t, err)
	g.AddSubscription(id.ClientID)

	g.Deregister(id.ClientID)
	assert.Zero(t, g.TrackedClients())
}
