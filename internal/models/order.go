package models

import (
	"errors"
	"time"
)

// OrderStatus is the lifecycle state of an order.
// Orders only ever move forward: received -> in_transit -> delivered.
type OrderStatus string

const (
	StatusReceived  OrderStatus = "received"
	StatusInTransit OrderStatus = "in_transit"
	StatusDelivered OrderStatus = "delivered"
)

var (
	// ErrAlreadyAssigned is the expected outcome for every driver that loses
	// an acceptance race. It is not a fault and must never surface to users.
	ErrAlreadyAssigned = errors.New("order already assigned to another driver")

	// ErrDriverBusy means the accepting driver already holds an in-transit
	// assignment. A driver carries at most one at any time.
	ErrDriverBusy = errors.New("driver already has an active assignment")

	// ErrInvalidTransition means a lifecycle write arrived out of order
	// (e.g. completing an order that is not in transit).
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrAlreadyRated means the order has a rating and it cannot be overwritten.
	ErrAlreadyRated = errors.New("order already rated")

	// ErrInvalidRating means the rating value is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrNotDelivered means a rating was attempted before delivery.
	ErrNotDelivered = errors.New("order not delivered yet")
)

// Coordinate is a geodetic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Customer holds the submitting customer's contact info and drop-off point.
type Customer struct {
	Name    string     `json:"name"`
	Phone   string     `json:"phone"`
	Address string     `json:"address"`
	Coords  Coordinate `json:"coords"`
}

// Order is a single delivery request from submission to completion.
type Order struct {
	OrderNumber    string      `json:"order_number"`
	Customer       Customer    `json:"customer"`
	ItemType       string      `json:"type_of_item"`
	Status         OrderStatus `json:"status"`
	AssignedDriver *string     `json:"assigned_driver,omitempty"`
	TrackedLat     *float64    `json:"-"`
	TrackedLng     *float64    `json:"-"`
	LastLocationAt *int64      `json:"-"`
	Rating         *int        `json:"rating,omitempty"`
	CreatedAt      int64       `json:"created_at"`
}

// TrackedLocation returns the last known driver position, or nil when the
// order is not in transit or no sample has arrived yet.
func (o *Order) TrackedLocation() *Coordinate {
	if o.Status != StatusInTransit || o.TrackedLat == nil || o.TrackedLng == nil {
		return nil
	}
	return &Coordinate{Lat: *o.TrackedLat, Lng: *o.TrackedLng}
}

// Assign records the winning driver. Exactly one concurrent caller may
// succeed; everyone who observes a non-received order gets ErrAlreadyAssigned.
func (o *Order) Assign(driverID string) error {
	if o.Status != StatusReceived || o.AssignedDriver != nil {
		return ErrAlreadyAssigned
	}
	d := driverID
	o.AssignedDriver = &d
	o.Status = StatusInTransit
	return nil
}

// Complete moves the order to delivered and clears the tracked location.
// Staff overrides pass override=true to bypass the assigned-driver check.
func (o *Order) Complete(driverID string, override bool) error {
	if o.Status != StatusInTransit {
		return ErrInvalidTransition
	}
	if !override && (o.AssignedDriver == nil || *o.AssignedDriver != driverID) {
		return ErrInvalidTransition
	}
	o.Status = StatusDelivered
	o.TrackedLat = nil
	o.TrackedLng = nil
	o.LastLocationAt = nil
	return nil
}

// Rate attaches a one-time rating after delivery. A second write is rejected
// and leaves the stored value untouched.
func (o *Order) Rate(value int) error {
	if value < 1 || value > 5 {
		return ErrInvalidRating
	}
	if o.Status != StatusDelivered {
		return ErrNotDelivered
	}
	if o.Rating != nil {
		return ErrAlreadyRated
	}
	v := value
	o.Rating = &v
	return nil
}

// RecordLocation overwrites the tracked location (last writer wins). Samples
// arriving outside in_transit are dropped.
func (o *Order) RecordLocation(lat, lng float64, at time.Time) bool {
	if o.Status != StatusInTransit {
		return false
	}
	ts := at.Unix()
	o.TrackedLat = &lat
	o.TrackedLng = &lng
	o.LastLocationAt = &ts
	return true
}

// Summary is the compact shape broadcast to the driver pool as a new-order offer.
type Summary struct {
	OrderNumber string     `json:"order_number"`
	ItemType    string     `json:"type_of_item"`
	Address     string     `json:"address"`
	Coords      Coordinate `json:"coords"`
	CreatedAt   int64      `json:"created_at"`
}

// ToSummary strips the order down to what a driver needs to decide on an offer.
func (o *Order) ToSummary() Summary {
	return Summary{
		OrderNumber: o.OrderNumber,
		ItemType:    o.ItemType,
		Address:     o.Customer.Address,
		Coords:      o.Customer.Coords,
		CreatedAt:   o.CreatedAt,
	}
}

// TrackInfo is the public tracking snapshot returned to customers and staff.
type TrackInfo struct {
	OrderNumber     string      `json:"order_number"`
	Status          OrderStatus `json:"status"`
	Customer        TrackParty  `json:"customer"`
	TrackedLocation *Coordinate `json:"tracked_location,omitempty"`
	Rating          *int        `json:"rating,omitempty"`
}

// TrackParty is the customer part of a tracking snapshot.
type TrackParty struct {
	Name   string     `json:"name"`
	Coords Coordinate `json:"coords"`
}

// ToTrackInfo builds the snapshot the public track endpoint serves.
func (o *Order) ToTrackInfo() TrackInfo {
	return TrackInfo{
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		Customer:        TrackParty{Name: o.Customer.Name, Coords: o.Customer.Coords},
		TrackedLocation: o.TrackedLocation(),
		Rating:          o.Rating,
	}
}
