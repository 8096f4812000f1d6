package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// OrderStore is the Postgres implementation of dispatch.OrderStore. All
// lifecycle transitions are conditioned UPDATEs so the row itself serializes
// concurrent writers.
type OrderStore struct {
	db *sqlx.DB
}

func NewOrderStore(db *sqlx.DB) *OrderStore {
	return &OrderStore{db: db}
}

// orderRow is the flat scan target for the orders table.
type orderRow struct {
	OrderNumber     string   `db:"order_number"`
	CustomerName    string   `db:"customer_name"`
	CustomerPhone   string   `db:"customer_phone"`
	CustomerAddress string   `db:"customer_address"`
	CustomerLat     float64  `db:"customer_lat"`
	CustomerLng     float64  `db:"customer_lng"`
	ItemType        string   `db:"item_type"`
	Status          string   `db:"status"`
	AssignedDriver  *string  `db:"assigned_driver"`
	TrackedLat      *float64 `db:"tracked_lat"`
	TrackedLng      *float64 `db:"tracked_lng"`
	LastLocationAt  *int64   `db:"last_location_at"`
	Rating          *int     `db:"rating"`
	CreatedAt       int64    `db:"created_at"`
}

func (r orderRow) toOrder() models.Order {
	return models.Order{
		OrderNumber: r.OrderNumber,
		Customer: models.Customer{
			Name:    r.CustomerName,
			Phone:   r.CustomerPhone,
			Address: r.CustomerAddress,
			Coords:  models.Coordinate{Lat: r.CustomerLat, Lng: r.CustomerLng},
		},
		ItemType:       r.ItemType,
		Status:         models.OrderStatus(r.Status),
		AssignedDriver: r.AssignedDriver,
		TrackedLat:     r.TrackedLat,
		TrackedLng:     r.TrackedLng,
		LastLocationAt: r.LastLocationAt,
		Rating:         r.Rating,
		CreatedAt:      r.CreatedAt,
	}
}

const orderColumns = `order_number, customer_name, customer_phone, customer_address,
	customer_lat, customer_lng, item_type, status, assigned_driver,
	tracked_lat, tracked_lng, last_location_at, rating, created_at`

func (s *OrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			order_number, customer_name, customer_phone, customer_address,
			customer_lat, customer_lng, item_type, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		order.OrderNumber,
		order.Customer.Name,
		order.Customer.Phone,
		order.Customer.Address,
		order.Customer.Coords.Lat,
		order.Customer.Coords.Lng,
		order.ItemType,
		order.Status,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	var row orderRow
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	if err := s.db.GetContext(ctx, &row, query, orderNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dispatch.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order := row.toOrder()
	return &order, nil
}

func (s *OrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	var rows []orderRow
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toOrder())
	}
	return orders, nil
}

func (s *OrderStore) ListPending(ctx context.Context) ([]models.Order, error) {
	var rows []orderRow
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = 'received' ORDER BY created_at ASC`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toOrder())
	}
	return orders, nil
}

// TryAssign atomically claims an unassigned order for a driver. The WHERE
// clause is the whole race-resolution algorithm: only one concurrent UPDATE
// can observe status='received' with assigned_driver unset, and a driver
// holding an in-transit order cannot claim a second one.
func (s *OrderStore) TryAssign(ctx context.Context, orderNumber, driverID string) (*models.Order, error) {
	var row orderRow
	query := `
		UPDATE orders
		SET assigned_driver = $1, status = 'in_transit'
		WHERE order_number = $2 AND status = 'received' AND assigned_driver IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM orders WHERE assigned_driver = $1 AND status = 'in_transit'
			)
		RETURNING ` + orderColumns
	err := s.db.GetContext(ctx, &row, query, driverID, orderNumber)
	if err == nil {
		order := row.toOrder()
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("try assign: %w", err)
	}

	// No row matched: the order doesn't exist, someone else won, or the
	// driver is already mid-delivery.
	order, getErr := s.GetOrder(ctx, orderNumber)
	if getErr != nil {
		return nil, getErr
	}
	if order.Status == models.StatusReceived && order.AssignedDriver == nil {
		return nil, models.ErrDriverBusy
	}
	return nil, models.ErrAlreadyAssigned
}

func (s *OrderStore) MarkDelivered(ctx context.Context, orderNumber, driverID string, override bool) (*models.Order, error) {
	var row orderRow
	query := `
		UPDATE orders
		SET status = 'delivered', tracked_lat = NULL, tracked_lng = NULL, last_location_at = NULL
		WHERE order_number = $1 AND status = 'in_transit' AND (assigned_driver = $2 OR $3)
		RETURNING ` + orderColumns
	err := s.db.GetContext(ctx, &row, query, orderNumber, driverID, override)
	if err == nil {
		order := row.toOrder()
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}

	if _, getErr := s.GetOrder(ctx, orderNumber); getErr != nil {
		return nil, getErr
	}
	return nil, models.ErrInvalidTransition
}

// RecordLocation overwrites the tracked location, last writer wins. Updates
// for orders no longer in transit (or from the wrong driver) are rejected so
// a late in-flight sample cannot resurrect a finished delivery.
func (s *OrderStore) RecordLocation(ctx context.Context, orderNumber, driverID string, lat, lng float64) error {
	query := `
		UPDATE orders
		SET tracked_lat = $1, tracked_lng = $2, last_location_at = $3
		WHERE order_number = $4 AND status = 'in_transit' AND assigned_driver = $5
	`
	res, err := s.db.ExecContext(ctx, query, lat, lng, time.Now().Unix(), orderNumber, driverID)
	if err != nil {
		return fmt.Errorf("record location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

func (s *OrderStore) SetRating(ctx context.Context, orderNumber string, rating int) error {
	if rating < 1 || rating > 5 {
		return models.ErrInvalidRating
	}

	query := `
		UPDATE orders
		SET rating = $1
		WHERE order_number = $2 AND status = 'delivered' AND rating IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, rating, orderNumber)
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	order, err := s.GetOrder(ctx, orderNumber)
	if err != nil {
		return err
	}
	if order.Status != models.StatusDelivered {
		return models.ErrNotDelivered
	}
	return models.ErrAlreadyRated
}

func (s *OrderStore) DeleteOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	var row orderRow
	query := `DELETE FROM orders WHERE order_number = $1 RETURNING ` + orderColumns
	if err := s.db.GetContext(ctx, &row, query, orderNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dispatch.ErrOrderNotFound
		}
		return nil, fmt.Errorf("delete order: %w", err)
	}
	order := row.toOrder()
	return &order, nil
}

// ClearStaleLocations drops tracked locations that stopped updating (driver
// vanished mid-delivery without a disconnect). The order stays in_transit;
// only the displayed path goes quiet instead of freezing on a stale point.
func (s *OrderStore) ClearStaleLocations(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	query := `
		UPDATE orders
		SET tracked_lat = NULL, tracked_lng = NULL, last_location_at = NULL
		WHERE status = 'in_transit' AND last_location_at IS NOT NULL AND last_location_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear stale locations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
