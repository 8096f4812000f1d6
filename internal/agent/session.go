package agent

import (
	"context"
	"fmt"
	"sync"
)

// SessionStore persists the driver's accepted order across process restarts.
type SessionStore interface {
	// Get returns the persisted order number, or "" when none.
	Get(ctx context.Context, driverID string) (string, error)
	Set(ctx context.Context, driverID, orderNumber string) error
	Delete(ctx context.Context, driverID string) error
}

// TrackingSession is the driver's durable assignment state. The accepted
// order number survives restarts; the streaming flag does not, it is
// recomputed false on load and explicitly resumed.
type TrackingSession struct {
	driverID string
	store    SessionStore

	mu            sync.Mutex
	acceptedOrder string
	streaming     bool
}

// LoadSession rehydrates a session from the store. A found acceptance means
// the app restarted mid-delivery and must resume tracking.
func LoadSession(ctx context.Context, store SessionStore, driverID string) (*TrackingSession, error) {
	orderNumber, err := store.Get(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("load session for %s: %w", driverID, err)
	}
	return &TrackingSession{
		driverID:      driverID,
		store:         store,
		acceptedOrder: orderNumber,
	}, nil
}

func (s *TrackingSession) DriverID() string {
	return s.driverID
}

// AcceptedOrder returns the active assignment, if any.
func (s *TrackingSession) AcceptedOrder() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptedOrder, s.acceptedOrder != ""
}

// Accept persists the assignment immediately so a crash between acceptance
// and the first sample still resumes into active tracking.
func (s *TrackingSession) Accept(ctx context.Context, orderNumber string) error {
	if err := s.store.Set(ctx, s.driverID, orderNumber); err != nil {
		return fmt.Errorf("persist acceptance of %s: %w", orderNumber, err)
	}
	s.mu.Lock()
	s.acceptedOrder = orderNumber
	s.mu.Unlock()
	return nil
}

// Clear removes the assignment from memory and the store. Called on delivery
// completion or staff cancellation, the only two ways an acceptance ends.
func (s *TrackingSession) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.driverID); err != nil {
		return fmt.Errorf("clear session for %s: %w", s.driverID, err)
	}
	s.mu.Lock()
	s.acceptedOrder = ""
	s.streaming = false
	s.mu.Unlock()
	return nil
}

func (s *TrackingSession) SetStreaming(streaming bool) {
	s.mu.Lock()
	s.streaming = streaming
	s.mu.Unlock()
}

func (s *TrackingSession) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// ShouldAutoResume reports whether a rehydrated session must restart GPS
// streaming without a manual start action.
func (s *TrackingSession) ShouldAutoResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptedOrder != "" && !s.streaming
}
