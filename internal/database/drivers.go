package database

import (
	"context"
	"fmt"
	"time"

	"tawsil-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// DriverStore covers the driver-pool queries the dispatcher and staff
// dashboard need: availability toggles, push tokens, fleet listings.
type DriverStore struct {
	db *sqlx.DB
}

func NewDriverStore(db *sqlx.DB) *DriverStore {
	return &DriverStore{db: db}
}

func (s *DriverStore) SetAvailability(ctx context.Context, driverID string, available bool) error {
	query := `UPDATE users SET available = $1, updated_at = $2 WHERE id = $3 AND role = 'driver'`
	res, err := s.db.ExecContext(ctx, query, available, time.Now().Unix(), driverID)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("driver %s not found", driverID)
	}
	return nil
}

func (s *DriverStore) SetFCMToken(ctx context.Context, driverID, token string) error {
	query := `UPDATE users SET fcm_token = $1, updated_at = $2 WHERE id = $3`
	if _, err := s.db.ExecContext(ctx, query, token, time.Now().Unix(), driverID); err != nil {
		return fmt.Errorf("set fcm token: %w", err)
	}
	return nil
}

// OfferTokens returns push tokens for available drivers without an active
// assignment, the pool that should see a new-order offer.
func (s *DriverStore) OfferTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	query := `
		SELECT u.fcm_token FROM users u
		WHERE u.role = 'driver' AND u.available = TRUE AND u.fcm_token IS NOT NULL
		AND NOT EXISTS (
			SELECT 1 FROM orders o WHERE o.assigned_driver = u.id AND o.status = 'in_transit'
		)
	`
	if err := s.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("offer tokens: %w", err)
	}
	return tokens, nil
}

// ListDrivers returns every driver with their current assignment, if any.
// A driver holds at most one in_transit order at a time.
func (s *DriverStore) ListDrivers(ctx context.Context) ([]models.DriverStatus, error) {
	type driverRow struct {
		ID                string   `db:"id"`
		Name              string   `db:"name"`
		Available         bool     `db:"available"`
		CurrentAssignment *string  `db:"current_assignment"`
		TrackedLat        *float64 `db:"tracked_lat"`
		TrackedLng        *float64 `db:"tracked_lng"`
	}

	var rows []driverRow
	query := `
		SELECT u.id, u.name, u.available,
		       o.order_number AS current_assignment,
		       o.tracked_lat, o.tracked_lng
		FROM users u
		LEFT JOIN orders o ON o.assigned_driver = u.id AND o.status = 'in_transit'
		WHERE u.role = 'driver'
		ORDER BY u.name
	`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	drivers := make([]models.DriverStatus, 0, len(rows))
	for _, r := range rows {
		d := models.DriverStatus{
			DriverID:          r.ID,
			Name:              r.Name,
			Available:         r.Available,
			CurrentAssignment: r.CurrentAssignment,
		}
		if r.TrackedLat != nil && r.TrackedLng != nil {
			d.LastLocation = &models.Coordinate{Lat: *r.TrackedLat, Lng: *r.TrackedLng}
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}

// ListActiveDrivers is ListDrivers filtered to drivers mid-delivery.
func (s *DriverStore) ListActiveDrivers(ctx context.Context) ([]models.DriverStatus, error) {
	drivers, err := s.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	active := drivers[:0]
	for _, d := range drivers {
		if d.CurrentAssignment != nil {
			active = append(active, d)
		}
	}
	return active, nil
}
