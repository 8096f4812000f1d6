package agent

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestSessionPersistsAcceptance(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := LoadSession(ctx, store, "driver-1")
	require.NoError(t, err)
	_, active := session.AcceptedOrder()
	require.False(t, active)
	require.False(t, session.ShouldAutoResume())

	require.NoError(t, session.Accept(ctx, "ord-42"))

	// A fresh load (restart) finds the acceptance and must resume tracking.
	restarted, err := LoadSession(ctx, store, "driver-1")
	require.NoError(t, err)
	orderNumber, active := restarted.AcceptedOrder()
	require.True(t, active)
	require.Equal(t, "ord-42", orderNumber)
	require.True(t, restarted.ShouldAutoResume())

	// Streaming state never survives a restart.
	require.False(t, restarted.Streaming())
}

func TestSessionClearEndsResume(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session, err := LoadSession(ctx, store, "driver-1")
	require.NoError(t, err)
	require.NoError(t, session.Accept(ctx, "ord-42"))
	session.SetStreaming(true)

	require.NoError(t, session.Clear(ctx))
	_, active := session.AcceptedOrder()
	require.False(t, active)
	require.False(t, session.Streaming())

	restarted, err := LoadSession(ctx, store, "driver-1")
	require.NoError(t, err)
	require.False(t, restarted.ShouldAutoResume())
}

func TestSessionsAreScopedPerDriver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := LoadSession(ctx, store, "driver-1")
	require.NoError(t, err)
	require.NoError(t, first.Accept(ctx, "ord-42"))

	second, err := LoadSession(ctx, store, "driver-2")
	require.NoError(t, err)
	_, active := second.AcceptedOrder()
	require.False(t, active)
}
