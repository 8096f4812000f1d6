package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"tawsil-backend/internal/models"
)

// Channel is the realtime surface the agent drives. Satisfied by
// ChannelClient; tests substitute a recorder.
type Channel interface {
	JoinOrder(orderNumber string) error
	LeaveOrder()
	SendLocation(update models.LocationUpdate) error
	SendDelivered(orderNumber string) error
}

// Agent ties the driver's pieces together: the durable session, the realtime
// channel, the REST client and the GPS sampler. One Agent per driver process.
type Agent struct {
	session *TrackingSession
	channel Channel
	api     OrderAPI
	watcher PositionWatcher
	cfg     SamplerConfig

	mu         sync.Mutex
	pending    map[string]models.Summary
	watchToken *CancelToken
}

func New(session *TrackingSession, channel Channel, api OrderAPI, watcher PositionWatcher, cfg SamplerConfig) *Agent {
	return &Agent{
		session: session,
		channel: channel,
		api:     api,
		watcher: watcher,
		cfg:     cfg,
		pending: make(map[string]models.Summary),
	}
}

// Handlers returns the channel event handlers wired to this agent. Pass the
// result to NewChannelClient before calling Start.
func (a *Agent) Handlers() EventHandlers {
	return EventHandlers{
		OnNewOrder:       a.onNewOrder,
		OnOrderAccepted:  a.onOrderAccepted,
		OnOrderCancelled: a.onOrderCancelled,
		OnConnected:      a.onConnected,
		OnDisconnected: func(err error) {
			log.Printf("⚠️ Disconnected from dispatch: %v", err)
		},
		OnServerError: func(message string) {
			log.Printf("❌ Dispatch rejected an event: %s", message)
		},
	}
}

// Start rehydrates from the persisted session. A found acceptance resumes GPS
// streaming immediately, without a manual start action.
func (a *Agent) Start(ctx context.Context) error {
	orderNumber, active := a.session.AcceptedOrder()
	if !active {
		log.Println("📋 No active delivery, waiting for offers")
		return nil
	}

	log.Printf("🔄 Resuming delivery of order %s", orderNumber)
	if err := a.channel.JoinOrder(orderNumber); err != nil {
		log.Printf("⚠️ Could not rejoin order topic yet: %v", err)
	}
	return a.startStreaming(orderNumber)
}

// AcceptOrder claims an offer. On a win it persists the session first, then
// starts streaming, so a crash in between still resumes into tracking.
func (a *Agent) AcceptOrder(ctx context.Context, orderNumber string) error {
	if current, active := a.session.AcceptedOrder(); active {
		return fmt.Errorf("already delivering order %s", current)
	}

	if err := a.api.Accept(ctx, orderNumber); err != nil {
		return err
	}
	if err := a.session.Accept(ctx, orderNumber); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.pending, orderNumber)
	a.mu.Unlock()

	if err := a.channel.JoinOrder(orderNumber); err != nil {
		log.Printf("⚠️ Could not join order topic: %v", err)
	}
	log.Printf("✅ Accepted order %s", orderNumber)
	return a.startStreaming(orderNumber)
}

// CompleteDelivery reports the active order delivered and tears the session
// down. Streaming stops before the report so no fix lands after completion.
func (a *Agent) CompleteDelivery(ctx context.Context) error {
	orderNumber, active := a.session.AcceptedOrder()
	if !active {
		return fmt.Errorf("no active delivery")
	}

	a.stopStreaming()

	if err := a.channel.SendDelivered(orderNumber); err != nil {
		return fmt.Errorf("report delivery of %s: %w", orderNumber, err)
	}
	a.channel.LeaveOrder()
	if err := a.session.Clear(ctx); err != nil {
		return err
	}
	log.Printf("🎉 Delivered order %s", orderNumber)
	return nil
}

// PendingOrders returns the agent's view of the open offer pool.
func (a *Agent) PendingOrders() []models.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Summary, 0, len(a.pending))
	for _, summary := range a.pending {
		out = append(out, summary)
	}
	return out
}

// Streaming reports whether GPS samples are currently flowing.
func (a *Agent) Streaming() bool {
	return a.session.Streaming()
}

// Stop halts streaming without clearing the session. Used on shutdown so a
// restart resumes the delivery.
func (a *Agent) Stop() {
	a.stopStreaming()
}

func (a *Agent) onConnected() {
	// The pool may have changed while offline; rebuild it.
	summaries, err := a.api.PendingOrders(context.Background())
	if err != nil {
		log.Printf("⚠️ Could not refresh pending orders: %v", err)
		return
	}
	a.mu.Lock()
	a.pending = make(map[string]models.Summary, len(summaries))
	for _, summary := range summaries {
		a.pending[summary.OrderNumber] = summary
	}
	a.mu.Unlock()
}

func (a *Agent) onNewOrder(summary models.Summary) {
	a.mu.Lock()
	a.pending[summary.OrderNumber] = summary
	a.mu.Unlock()
	log.Printf("📦 New order offered: %s", summary.OrderNumber)
}

func (a *Agent) onOrderAccepted(orderNumber, driverID string) {
	if driverID == a.session.DriverID() {
		return
	}
	a.mu.Lock()
	delete(a.pending, orderNumber)
	a.mu.Unlock()
	log.Printf("📋 Order %s taken by another driver", orderNumber)
}

func (a *Agent) onOrderCancelled(orderNumber string) {
	a.mu.Lock()
	delete(a.pending, orderNumber)
	a.mu.Unlock()

	if current, active := a.session.AcceptedOrder(); active && current == orderNumber {
		log.Printf("🚫 Active order %s was cancelled", orderNumber)
		a.stopStreaming()
		a.channel.LeaveOrder()
		if err := a.session.Clear(context.Background()); err != nil {
			log.Printf("❌ Failed to clear session after cancellation: %v", err)
		}
	}
}

// startStreaming holds a.mu for the whole check-start-assign sequence so two
// concurrent callers cannot both start a watcher and leak one.
func (a *Agent) startStreaming(orderNumber string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watchToken != nil && !a.watchToken.Cancelled() {
		return nil
	}

	driverID := a.session.DriverID()
	token, err := StartWatching(a.watcher, a.cfg, SampleCallbacks{
		OnSample: func(sample models.LocationSample) {
			update := models.LocationUpdate{
				OrderID:  orderNumber,
				DriverID: driverID,
				Lat:      sample.Coordinate.Lat,
				Lng:      sample.Coordinate.Lng,
				Accuracy: sample.AccuracyMeters,
			}
			if err := a.channel.SendLocation(update); err != nil {
				log.Printf("⚠️ Dropped location sample: %v", err)
			}
		},
		OnError: func(err error) {
			log.Printf("❌ Positioning failed, streaming stopped: %v", err)
			a.session.SetStreaming(false)
		},
	})
	if err != nil {
		return fmt.Errorf("start GPS watch: %w", err)
	}

	a.watchToken = token
	a.session.SetStreaming(true)
	log.Printf("📡 Streaming location for order %s", orderNumber)
	return nil
}

func (a *Agent) stopStreaming() {
	a.mu.Lock()
	token := a.watchToken
	a.watchToken = nil
	a.mu.Unlock()
	if token != nil {
		token.Cancel()
	}
	a.session.SetStreaming(false)
}
