// Package testutil holds shared test fixtures.
package testutil

import (
	"context"
	"sync"
	"time"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/models"
)

// MemoryOrderStore is an in-memory dispatch.OrderStore. Transitions hold one
// mutex across read-check-write, so it honors the same at-most-one-winner
// contract as the SQL store's conditioned updates.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]*models.Order)}
}

var _ dispatch.OrderStore = (*MemoryOrderStore)(nil)

func (s *MemoryOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *order
	s.orders[order.OrderNumber] = &clone
	return nil
}

func (s *MemoryOrderStore) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, dispatch.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *MemoryOrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, *order)
	}
	return out, nil
}

func (s *MemoryOrderStore) ListPending(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.Status == models.StatusReceived {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *MemoryOrderStore) TryAssign(ctx context.Context, orderNumber, driverID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, dispatch.ErrOrderNotFound
	}
	for _, other := range s.orders {
		if other.Status == models.StatusInTransit && other.AssignedDriver != nil && *other.AssignedDriver == driverID {
			return nil, models.ErrDriverBusy
		}
	}
	if err := order.Assign(driverID); err != nil {
		return nil, err
	}
	clone := *order
	return &clone, nil
}

func (s *MemoryOrderStore) MarkDelivered(ctx context.Context, orderNumber, driverID string, override bool) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, dispatch.ErrOrderNotFound
	}
	if err := order.Complete(driverID, override); err != nil {
		return nil, err
	}
	clone := *order
	return &clone, nil
}

func (s *MemoryOrderStore) RecordLocation(ctx context.Context, orderNumber, driverID string, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return dispatch.ErrOrderNotFound
	}
	if order.AssignedDriver == nil || *order.AssignedDriver != driverID {
		return models.ErrInvalidTransition
	}
	if !order.RecordLocation(lat, lng, time.Now()) {
		return models.ErrInvalidTransition
	}
	return nil
}

func (s *MemoryOrderStore) SetRating(ctx context.Context, orderNumber string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return dispatch.ErrOrderNotFound
	}
	return order.Rate(rating)
}

func (s *MemoryOrderStore) DeleteOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, dispatch.ErrOrderNotFound
	}
	delete(s.orders, orderNumber)
	return order, nil
}
