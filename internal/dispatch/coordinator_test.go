package dispatch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/models"
	"tawsil-backend/internal/testutil"
)

// recordingHub captures coordinator broadcasts.
type recordingHub struct {
	mu        sync.Mutex
	newOrders []models.Summary
	accepted  []string // "<order>:<driver>"
	completed []string
	cancelled []string
}

func (h *recordingHub) BroadcastNewOrder(summary models.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.newOrders = append(h.newOrders, summary)
}

func (h *recordingHub) BroadcastOrderAccepted(orderNumber, driverID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accepted = append(h.accepted, orderNumber+":"+driverID)
}

func (h *recordingHub) BroadcastDeliveryComplete(orderNumber string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, orderNumber)
}

func (h *recordingHub) BroadcastOrderCancelled(orderNumber string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = append(h.cancelled, orderNumber)
}

func testCustomer() models.Customer {
	return models.Customer{
		Name:    "Amal",
		Phone:   "+218910000000",
		Address: "12 Omar Mukhtar St",
		Coords:  models.Coordinate{Lat: 32.8872, Lng: 13.1913},
	}
}

func TestSubmitValidatesAndBroadcasts(t *testing.T) {
	hub := &recordingHub{}
	coord := dispatch.NewCoordinator(testutil.NewMemoryOrderStore(), hub, nil, nil)

	_, err := coord.Submit(context.Background(), models.Customer{}, "documents")
	require.Error(t, err)
	require.True(t, dispatch.IsValidation(err))

	_, err = coord.Submit(context.Background(), testCustomer(), "")
	require.True(t, dispatch.IsValidation(err))

	order, err := coord.Submit(context.Background(), testCustomer(), "documents")
	require.NoError(t, err)
	require.NotEmpty(t, order.OrderNumber)
	require.Equal(t, models.StatusReceived, order.Status)

	require.Len(t, hub.newOrders, 1)
	require.Equal(t, order.OrderNumber, hub.newOrders[0].OrderNumber)
}

func TestConcurrentAcceptHasExactlyOneWinner(t *testing.T) {
	store := testutil.NewMemoryOrderStore()
	hub := &recordingHub{}
	coord := dispatch.NewCoordinator(store, hub, nil, nil)

	order, err := coord.Submit(context.Background(), testCustomer(), "groceries")
	require.NoError(t, err)

	const drivers = 16
	var wg sync.WaitGroup
	errs := make([]error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Accept(context.Background(), order.OrderNumber, string(rune('A'+i)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, models.ErrAlreadyAssigned)
		}
	}
	require.Equal(t, 1, wins)

	// Exactly one order-accepted broadcast, carrying the winner.
	require.Len(t, hub.accepted, 1)
	stored, err := store.GetOrder(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, stored.Status)
	require.Equal(t, stored.OrderNumber+":"+*stored.AssignedDriver, hub.accepted[0])
}

func TestDriverCannotHoldTwoAssignments(t *testing.T) {
	store := testutil.NewMemoryOrderStore()
	hub := &recordingHub{}
	coord := dispatch.NewCoordinator(store, hub, nil, nil)

	first, err := coord.Submit(context.Background(), testCustomer(), "documents")
	require.NoError(t, err)
	second, err := coord.Submit(context.Background(), testCustomer(), "groceries")
	require.NoError(t, err)

	_, err = coord.Accept(context.Background(), first.OrderNumber, "driver-1")
	require.NoError(t, err)

	// A second accept from the same driver is rejected at the store, not
	// just by the driver's own client.
	_, err = coord.Accept(context.Background(), second.OrderNumber, "driver-1")
	require.ErrorIs(t, err, models.ErrDriverBusy)
	require.Len(t, hub.accepted, 1)

	// The second order is still up for grabs for everyone else.
	stored, err := store.GetOrder(context.Background(), second.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, models.StatusReceived, stored.Status)
	_, err = coord.Accept(context.Background(), second.OrderNumber, "driver-2")
	require.NoError(t, err)

	// Delivering the first order frees the driver again.
	_, err = coord.Complete(context.Background(), first.OrderNumber, "driver-1", false)
	require.NoError(t, err)
	third, err := coord.Submit(context.Background(), testCustomer(), "documents")
	require.NoError(t, err)
	_, err = coord.Accept(context.Background(), third.OrderNumber, "driver-1")
	require.NoError(t, err)
}

func TestAcceptUnknownOrder(t *testing.T) {
	coord := dispatch.NewCoordinator(testutil.NewMemoryOrderStore(), &recordingHub{}, nil, nil)
	_, err := coord.Accept(context.Background(), "missing", "driver-1")
	require.ErrorIs(t, err, dispatch.ErrOrderNotFound)
}

func TestCompleteFiresOneDeliveryEvent(t *testing.T) {
	store := testutil.NewMemoryOrderStore()
	hub := &recordingHub{}
	coord := dispatch.NewCoordinator(store, hub, nil, nil)

	order, err := coord.Submit(context.Background(), testCustomer(), "documents")
	require.NoError(t, err)
	_, err = coord.Accept(context.Background(), order.OrderNumber, "driver-1")
	require.NoError(t, err)

	delivered, err := coord.Complete(context.Background(), order.OrderNumber, "driver-1", false)
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, delivered.Status)
	require.Equal(t, []string{order.OrderNumber}, hub.completed)

	// Replayed completion signals fail and do not re-broadcast.
	_, err = coord.Complete(context.Background(), order.OrderNumber, "driver-1", false)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	require.Len(t, hub.completed, 1)
}

func TestCancelBroadcastsOrderCancelled(t *testing.T) {
	store := testutil.NewMemoryOrderStore()
	hub := &recordingHub{}
	coord := dispatch.NewCoordinator(store, hub, nil, nil)

	order, err := coord.Submit(context.Background(), testCustomer(), "documents")
	require.NoError(t, err)

	_, err = coord.Cancel(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, []string{order.OrderNumber}, hub.cancelled)

	_, err = store.GetOrder(context.Background(), order.OrderNumber)
	require.ErrorIs(t, err, dispatch.ErrOrderNotFound)
}

func TestRateMapsStoreErrors(t *testing.T) {
	store := testutil.NewMemoryOrderStore()
	coord := dispatch.NewCoordinator(store, &recordingHub{}, nil, nil)

	order, err := coord.Submit(context.Background(), testCustomer(), "documents")
	require.NoError(t, err)

	require.ErrorIs(t, coord.Rate(context.Background(), order.OrderNumber, 5), models.ErrNotDelivered)

	_, err = coord.Accept(context.Background(), order.OrderNumber, "driver-1")
	require.NoError(t, err)
	_, err = coord.Complete(context.Background(), order.OrderNumber, "driver-1", false)
	require.NoError(t, err)

	require.NoError(t, coord.Rate(context.Background(), order.OrderNumber, 5))
	require.ErrorIs(t, coord.Rate(context.Background(), order.OrderNumber, 3), models.ErrAlreadyRated)
}
