package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"tawsil-backend/internal/models"
)

type fakeChannel struct {
	joined    []string
	left      int
	locations []models.LocationUpdate
	delivered []string
}

func (c *fakeChannel) JoinOrder(orderNumber string) error {
	c.joined = append(c.joined, orderNumber)
	return nil
}

func (c *fakeChannel) LeaveOrder() { c.left++ }

func (c *fakeChannel) SendLocation(update models.LocationUpdate) error {
	c.locations = append(c.locations, update)
	return nil
}

func (c *fakeChannel) SendDelivered(orderNumber string) error {
	c.delivered = append(c.delivered, orderNumber)
	return nil
}

type fakeAPI struct {
	acceptErr error
	accepted  []string
	pending   []models.Summary
}

func (a *fakeAPI) Accept(ctx context.Context, orderNumber string) error {
	if a.acceptErr != nil {
		return a.acceptErr
	}
	a.accepted = append(a.accepted, orderNumber)
	return nil
}

func (a *fakeAPI) PendingOrders(ctx context.Context) ([]models.Summary, error) {
	return a.pending, nil
}

func newTestAgent(t *testing.T, api *fakeAPI) (*Agent, *fakeChannel, *fakeWatcher, *TrackingSession) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	session, err := LoadSession(context.Background(), store, "driver-1")
	require.NoError(t, err)

	channel := &fakeChannel{}
	watcher := &fakeWatcher{}
	return New(session, channel, api, watcher, DefaultSamplerConfig()), channel, watcher, session
}

func TestAcceptStartsStreamingForTheOrder(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	drv, channel, watcher, session := newTestAgent(t, api)

	require.NoError(t, drv.AcceptOrder(ctx, "ord-42"))
	require.Equal(t, []string{"ord-42"}, api.accepted)
	require.Equal(t, []string{"ord-42"}, channel.joined)
	require.True(t, session.Streaming())

	watcher.onFix(fix(20))
	require.Len(t, channel.locations, 1)
	require.Equal(t, "ord-42", channel.locations[0].OrderID)
	require.Equal(t, "driver-1", channel.locations[0].DriverID)

	// One delivery at a time.
	require.Error(t, drv.AcceptOrder(ctx, "ord-43"))
}

func TestLostRaceLeavesAgentIdle(t *testing.T) {
	api := &fakeAPI{acceptErr: models.ErrAlreadyAssigned}
	drv, channel, _, session := newTestAgent(t, api)

	err := drv.AcceptOrder(context.Background(), "ord-42")
	require.ErrorIs(t, err, models.ErrAlreadyAssigned)
	require.Empty(t, channel.joined)
	require.False(t, session.Streaming())
	_, active := session.AcceptedOrder()
	require.False(t, active)
}

func TestCompleteDeliveryStopsStreamFirst(t *testing.T) {
	ctx := context.Background()
	drv, channel, watcher, session := newTestAgent(t, &fakeAPI{})

	require.NoError(t, drv.AcceptOrder(ctx, "ord-42"))
	require.NoError(t, drv.CompleteDelivery(ctx))

	require.Equal(t, []string{"ord-42"}, channel.delivered)
	require.True(t, watcher.stopped)
	require.False(t, session.Streaming())
	_, active := session.AcceptedOrder()
	require.False(t, active)

	// No fix leaks out after completion.
	watcher.onFix(fix(20))
	require.Empty(t, channel.locations)

	require.Error(t, drv.CompleteDelivery(ctx))
}

func TestConcurrentStreamStartsSpawnOneWatcher(t *testing.T) {
	ctx := context.Background()
	drv, _, watcher, session := newTestAgent(t, &fakeAPI{})
	require.NoError(t, session.Accept(ctx, "ord-42"))

	const starters = 8
	var wg sync.WaitGroup
	errs := make([]error, starters)
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = drv.startStreaming("ord-42")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, watcher.watchCalls)
	require.True(t, session.Streaming())
}

func TestPendingPoolFollowsBroadcasts(t *testing.T) {
	drv, _, _, _ := newTestAgent(t, &fakeAPI{})

	drv.onNewOrder(models.Summary{OrderNumber: "ord-1"})
	drv.onNewOrder(models.Summary{OrderNumber: "ord-2"})
	require.Len(t, drv.PendingOrders(), 2)

	// Another driver's win removes the offer.
	drv.onOrderAccepted("ord-1", "driver-9")
	require.Len(t, drv.PendingOrders(), 1)

	drv.onOrderCancelled("ord-2")
	require.Empty(t, drv.PendingOrders())
}

func TestCancellationOfActiveOrderTearsDownSession(t *testing.T) {
	ctx := context.Background()
	drv, channel, watcher, session := newTestAgent(t, &fakeAPI{})

	require.NoError(t, drv.AcceptOrder(ctx, "ord-42"))
	drv.onOrderCancelled("ord-42")

	require.True(t, watcher.stopped)
	require.Equal(t, 1, channel.left)
	_, active := session.AcceptedOrder()
	require.False(t, active)
}

func TestStartResumesPersistedDelivery(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, store.Set(ctx, "driver-1", "ord-42"))

	session, err := LoadSession(ctx, store, "driver-1")
	require.NoError(t, err)

	channel := &fakeChannel{}
	watcher := &fakeWatcher{}
	drv := New(session, channel, &fakeAPI{}, watcher, DefaultSamplerConfig())

	require.NoError(t, drv.Start(ctx))
	require.Equal(t, []string{"ord-42"}, channel.joined)
	require.True(t, session.Streaming())

	watcher.onFix(fix(15))
	require.Len(t, channel.locations, 1)
	require.Equal(t, "ord-42", channel.locations[0].OrderID)
}
