package models

import "time"

// LocationSample is a single GPS fix from a driver device.
type LocationSample struct {
	Coordinate Coordinate `json:"coordinate"`
	// AccuracyMeters is the radius of the fix's error circle. Samples above
	// the configured rejection threshold never reach the dispatch channel.
	AccuracyMeters float64 `json:"accuracy_meters"`
	// CapturedAt comes from the device's monotonic clock.
	CapturedAt time.Time `json:"captured_at"`
}

// LocationUpdate is the update-location wire payload (driver -> server).
type LocationUpdate struct {
	OrderID  string  `json:"orderId"`
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

// DriverStatus is a driver row for the staff fleet dashboard.
type DriverStatus struct {
	DriverID          string      `json:"driver_id" db:"id"`
	Name              string      `json:"name" db:"name"`
	Available         bool        `json:"available" db:"available"`
	CurrentAssignment *string     `json:"current_assignment,omitempty" db:"current_assignment"`
	LastLocation      *Coordinate `json:"last_location,omitempty"`
}
