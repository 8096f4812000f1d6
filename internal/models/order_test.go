package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestOrder() *Order {
	return &Order{
		OrderNumber: "ord-1",
		Customer: Customer{
			Name:    "Amal",
			Phone:   "+218910000000",
			Address: "12 Omar Mukhtar St",
			Coords:  Coordinate{Lat: 32.8872, Lng: 13.1913},
		},
		ItemType:  "documents",
		Status:    StatusReceived,
		CreatedAt: time.Now().Unix(),
	}
}

func TestOrderLifecycleOnlyMovesForward(t *testing.T) {
	order := newTestOrder()

	require.NoError(t, order.Assign("driver-1"))
	require.Equal(t, StatusInTransit, order.Status)

	// A second assignment attempt loses.
	require.ErrorIs(t, order.Assign("driver-2"), ErrAlreadyAssigned)
	require.Equal(t, "driver-1", *order.AssignedDriver)

	require.NoError(t, order.Complete("driver-1", false))
	require.Equal(t, StatusDelivered, order.Status)

	// Delivered is terminal.
	require.ErrorIs(t, order.Complete("driver-1", false), ErrInvalidTransition)
	require.ErrorIs(t, order.Assign("driver-3"), ErrAlreadyAssigned)
}

func TestOrderCompleteRequiresAssignedDriver(t *testing.T) {
	order := newTestOrder()
	require.NoError(t, order.Assign("driver-1"))

	require.ErrorIs(t, order.Complete("driver-2", false), ErrInvalidTransition)
	require.Equal(t, StatusInTransit, order.Status)

	// Staff override bypasses the driver check.
	require.NoError(t, order.Complete("", true))
	require.Equal(t, StatusDelivered, order.Status)
}

func TestOrderCompleteBeforeAssignFails(t *testing.T) {
	order := newTestOrder()
	require.ErrorIs(t, order.Complete("driver-1", false), ErrInvalidTransition)
}

func TestOrderRatingIsWriteOnce(t *testing.T) {
	order := newTestOrder()

	require.ErrorIs(t, order.Rate(5), ErrNotDelivered)

	require.NoError(t, order.Assign("driver-1"))
	require.NoError(t, order.Complete("driver-1", false))

	require.ErrorIs(t, order.Rate(0), ErrInvalidRating)
	require.ErrorIs(t, order.Rate(6), ErrInvalidRating)

	require.NoError(t, order.Rate(4))
	require.Equal(t, 4, *order.Rating)

	// The stored value survives a rejected second write.
	require.ErrorIs(t, order.Rate(2), ErrAlreadyRated)
	require.Equal(t, 4, *order.Rating)
}

func TestRecordLocationOnlyWhileInTransit(t *testing.T) {
	order := newTestOrder()
	now := time.Now()

	require.False(t, order.RecordLocation(32.88, 13.19, now))
	require.Nil(t, order.TrackedLocation())

	require.NoError(t, order.Assign("driver-1"))
	require.True(t, order.RecordLocation(32.88, 13.19, now))
	require.True(t, order.RecordLocation(32.89, 13.20, now))

	// Last writer wins.
	loc := order.TrackedLocation()
	require.NotNil(t, loc)
	require.Equal(t, 32.89, loc.Lat)

	// Completion clears the tracked location.
	require.NoError(t, order.Complete("driver-1", false))
	require.Nil(t, order.TrackedLocation())
	require.False(t, order.RecordLocation(32.90, 13.21, now))
}

func TestToTrackInfoOmitsPhoneAndDriver(t *testing.T) {
	order := newTestOrder()
	require.NoError(t, order.Assign("driver-1"))
	order.RecordLocation(32.88, 13.19, time.Now())

	info := order.ToTrackInfo()
	require.Equal(t, order.OrderNumber, info.OrderNumber)
	require.Equal(t, "Amal", info.Customer.Name)
	require.NotNil(t, info.TrackedLocation)
}
