package tracking

import (
	"fmt"
	"sync"

	"tawsil-backend/internal/geo"
	"tawsil-backend/internal/models"
	"tawsil-backend/internal/services"
)

// Unavailable is shown when the routing backend cannot answer. The live map
// keeps working without it.
const Unavailable = "N/A"

// RouteFunc computes driving distance and ETA between two points. Wire it to
// services.RouteInfoClient.Route; tests substitute a stub.
type RouteFunc func(origin, destination models.Coordinate) (*services.RouteInfo, error)

// State is one render-ready frame of a tracked delivery.
type State struct {
	OrderNumber    string
	Status         models.OrderStatus
	Customer       models.TrackParty
	DriverLocation *models.Coordinate
	Distance       string
	ETA            string
	Rating         *int
}

// View maintains a live picture of one order for a customer or staff screen.
// It starts from the REST snapshot and then folds in channel events. Delivery
// completion is one-shot: later events for the order are ignored.
type View struct {
	route       RouteFunc
	onDelivered func()

	mu        sync.Mutex
	state     State
	delivered bool
	routeSeq  uint64
	doneOnce  sync.Once
}

// NewView seeds a view from the tracking snapshot. A snapshot that already
// says delivered fires onDelivered immediately.
func NewView(snapshot models.TrackInfo, route RouteFunc, onDelivered func()) *View {
	v := &View{
		route:       route,
		onDelivered: onDelivered,
		state: State{
			OrderNumber:    snapshot.OrderNumber,
			Status:         snapshot.Status,
			Customer:       snapshot.Customer,
			DriverLocation: snapshot.TrackedLocation,
			Distance:       Unavailable,
			ETA:            Unavailable,
			Rating:         snapshot.Rating,
		},
	}

	if snapshot.TrackedLocation != nil {
		v.refreshRoute(*snapshot.TrackedLocation)
	}
	if snapshot.Status == models.StatusDelivered {
		v.markDelivered()
	}
	return v
}

// ApplyLocation folds one location-updated event into the view. Events for
// other orders or after delivery are ignored.
func (v *View) ApplyLocation(update models.LocationUpdate) {
	v.mu.Lock()
	if v.delivered || update.OrderID != v.state.OrderNumber {
		v.mu.Unlock()
		return
	}
	pos := models.Coordinate{Lat: update.Lat, Lng: update.Lng}
	v.state.DriverLocation = &pos
	v.state.Status = models.StatusInTransit
	v.mu.Unlock()

	v.refreshRoute(pos)
}

// ApplyDeliveryComplete handles the delivery-complete event. Idempotent.
func (v *View) ApplyDeliveryComplete(orderNumber string) {
	v.mu.Lock()
	if orderNumber != v.state.OrderNumber {
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	v.markDelivered()
}

// Snapshot returns the current frame.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Delivered reports whether the view reached its terminal state.
func (v *View) Delivered() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.delivered
}

// refreshRoute recomputes distance/ETA off the event path. Route lookups can
// block on HTTP for seconds; the location handler must never wait on them.
func (v *View) refreshRoute(from models.Coordinate) {
	v.mu.Lock()
	route := v.route
	dest := v.state.Customer.Coords
	v.routeSeq++
	seq := v.routeSeq
	v.mu.Unlock()

	go func() {
		distance, eta := Unavailable, Unavailable
		if route != nil {
			if info, err := route(from, dest); err == nil && info != nil {
				distance, eta = info.Distance, info.Duration
			}
		}
		if distance == Unavailable {
			// Straight-line approximation keeps the distance readout alive
			// while the routing backend is down. ETA stays unavailable.
			distance = fmt.Sprintf("~%.1f km", geo.HaversineKm(from.Lat, from.Lng, dest.Lat, dest.Lng))
		}

		v.mu.Lock()
		// A newer fix or the delivered transition supersedes this result.
		if seq == v.routeSeq && !v.delivered {
			v.state.Distance = distance
			v.state.ETA = eta
		}
		v.mu.Unlock()
	}()
}

func (v *View) markDelivered() {
	v.doneOnce.Do(func() {
		v.mu.Lock()
		v.delivered = true
		v.state.Status = models.StatusDelivered
		v.state.DriverLocation = nil
		v.state.Distance = Unavailable
		v.state.ETA = Unavailable
		v.mu.Unlock()
		if v.onDelivered != nil {
			v.onDelivered()
		}
	})
}
