package tracking

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tawsil-backend/internal/models"
	"tawsil-backend/internal/services"
)

func stubRoute(info *services.RouteInfo, err error) RouteFunc {
	return func(origin, destination models.Coordinate) (*services.RouteInfo, error) {
		return info, err
	}
}

func snapshot(status models.OrderStatus) models.TrackInfo {
	return models.TrackInfo{
		OrderNumber: "ord-1",
		Status:      status,
		Customer: models.TrackParty{
			Name:   "Amal",
			Coords: models.Coordinate{Lat: 32.90, Lng: 13.20},
		},
	}
}

func TestViewFoldsInLocationUpdates(t *testing.T) {
	view := NewView(snapshot(models.StatusInTransit), stubRoute(&services.RouteInfo{Distance: "5.2 km", Duration: "12 mins"}, nil), nil)

	state := view.Snapshot()
	require.Nil(t, state.DriverLocation)
	require.Equal(t, Unavailable, state.Distance)

	view.ApplyLocation(models.LocationUpdate{OrderID: "ord-1", DriverID: "driver-1", Lat: 32.88, Lng: 13.19})

	state = view.Snapshot()
	require.NotNil(t, state.DriverLocation)
	require.Equal(t, 32.88, state.DriverLocation.Lat)

	// Route results arrive off the event path.
	require.Eventually(t, func() bool {
		return view.Snapshot().Distance == "5.2 km" && view.Snapshot().ETA == "12 mins"
	}, time.Second, 5*time.Millisecond)
}

func TestViewIgnoresOtherOrders(t *testing.T) {
	view := NewView(snapshot(models.StatusInTransit), nil, nil)

	view.ApplyLocation(models.LocationUpdate{OrderID: "ord-2", Lat: 32.88, Lng: 13.19})
	require.Nil(t, view.Snapshot().DriverLocation)

	view.ApplyDeliveryComplete("ord-2")
	require.False(t, view.Delivered())
}

func TestViewDegradesWhenRoutingFails(t *testing.T) {
	view := NewView(snapshot(models.StatusInTransit), stubRoute(nil, errors.New("backend down")), nil)

	view.ApplyLocation(models.LocationUpdate{OrderID: "ord-1", Lat: 32.88, Lng: 13.19})

	// The map keeps working; distance falls back to straight-line, ETA degrades.
	require.NotNil(t, view.Snapshot().DriverLocation)
	approx := regexp.MustCompile(`^~\d+\.\d km$`)
	require.Eventually(t, func() bool {
		state := view.Snapshot()
		return approx.MatchString(state.Distance) && state.ETA == Unavailable
	}, time.Second, 5*time.Millisecond)
}

func TestApplyLocationDoesNotBlockOnRouting(t *testing.T) {
	release := make(chan struct{})
	slowRoute := func(origin, destination models.Coordinate) (*services.RouteInfo, error) {
		<-release
		return &services.RouteInfo{Distance: "5.2 km", Duration: "12 mins"}, nil
	}
	view := NewView(snapshot(models.StatusInTransit), slowRoute, nil)

	start := time.Now()
	view.ApplyLocation(models.LocationUpdate{OrderID: "ord-1", Lat: 32.88, Lng: 13.19})
	require.Less(t, time.Since(start), 100*time.Millisecond)

	// The fix itself is visible immediately, the route figure when it lands.
	require.NotNil(t, view.Snapshot().DriverLocation)
	require.Equal(t, Unavailable, view.Snapshot().Distance)

	close(release)
	require.Eventually(t, func() bool {
		return view.Snapshot().Distance == "5.2 km"
	}, time.Second, 5*time.Millisecond)
}

func TestDeliveryCompleteIsOneShot(t *testing.T) {
	var fired int
	view := NewView(snapshot(models.StatusInTransit), nil, func() { fired++ })

	view.ApplyLocation(models.LocationUpdate{OrderID: "ord-1", Lat: 32.88, Lng: 13.19})
	view.ApplyDeliveryComplete("ord-1")
	view.ApplyDeliveryComplete("ord-1")

	require.Equal(t, 1, fired)
	state := view.Snapshot()
	require.Equal(t, models.StatusDelivered, state.Status)
	require.Nil(t, state.DriverLocation)

	// Late location events for a delivered order are dropped.
	view.ApplyLocation(models.LocationUpdate{OrderID: "ord-1", Lat: 32.89, Lng: 13.19})
	require.Nil(t, view.Snapshot().DriverLocation)
}

func TestDeliveredSnapshotFiresImmediately(t *testing.T) {
	var fired int
	view := NewView(snapshot(models.StatusDelivered), nil, func() { fired++ })
	require.Equal(t, 1, fired)
	require.True(t, view.Delivered())
}
