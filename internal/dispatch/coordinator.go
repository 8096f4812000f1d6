package dispatch

import (
	"context"
	"log"
	"time"

	"tawsil-backend/internal/models"

	"github.com/google/uuid"
)

// OrderStore is the persistence port for the order lifecycle. Every transition
// is a conditioned write so the stored row stays the single source of truth
// for assignment races.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	// ListPending returns orders still in the broadcast pool (status received).
	ListPending(ctx context.Context) ([]models.Order, error)
	// TryAssign is the serialization point of the acceptance race: an atomic
	// compare-and-set on assigned_driver conditioned on it being unset.
	// Exactly one concurrent caller wins; the rest get ErrAlreadyAssigned.
	TryAssign(ctx context.Context, orderNumber, driverID string) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderNumber, driverID string, override bool) (*models.Order, error)
	RecordLocation(ctx context.Context, orderNumber, driverID string, lat, lng float64) error
	SetRating(ctx context.Context, orderNumber string, rating int) error
	DeleteOrder(ctx context.Context, orderNumber string) (*models.Order, error)
}

// Broadcaster is the dispatch-channel port the coordinator fans events into.
type Broadcaster interface {
	BroadcastNewOrder(summary models.Summary)
	BroadcastOrderAccepted(orderNumber, driverID string)
	BroadcastDeliveryComplete(orderNumber string)
	BroadcastOrderCancelled(orderNumber string)
}

// AuditPublisher streams lifecycle events to the audit log. May be absent.
type AuditPublisher interface {
	PublishOrderEvent(ctx context.Context, event string, orderNumber string, driverID string) error
}

// OfferNotifier pushes new-order offers to driver devices. May be absent.
type OfferNotifier interface {
	PushNewOrder(ctx context.Context, summary models.Summary)
}

// Coordinator owns every order lifecycle write: intake, the at-most-one-driver
// acceptance race, completion, cancellation and rating. Location relay is
// deliberately not routed through here so a stream hiccup can never block or
// corrupt an assignment decision.
type Coordinator struct {
	store OrderStore
	hub   Broadcaster
	audit AuditPublisher
	push  OfferNotifier
}

// NewCoordinator wires the coordinator. audit and push may be nil.
func NewCoordinator(store OrderStore, hub Broadcaster, audit AuditPublisher, push OfferNotifier) *Coordinator {
	return &Coordinator{store: store, hub: hub, audit: audit, push: push}
}

// Submit validates and creates an order in received, then offers it to the
// driver pool over the channel and (best effort) as a push notification.
func (c *Coordinator) Submit(ctx context.Context, customer models.Customer, itemType string) (*models.Order, error) {
	switch {
	case customer.Name == "":
		return nil, &ValidationError{Field: "customer.name"}
	case customer.Phone == "":
		return nil, &ValidationError{Field: "customer.phone"}
	case customer.Address == "":
		return nil, &ValidationError{Field: "customer.address"}
	case customer.Coords.Lat == 0 && customer.Coords.Lng == 0:
		return nil, &ValidationError{Field: "customer.coords"}
	case itemType == "":
		return nil, &ValidationError{Field: "type_of_item"}
	}

	order := &models.Order{
		OrderNumber: uuid.New().String(),
		Customer:    customer,
		ItemType:    itemType,
		Status:      models.StatusReceived,
		CreatedAt:   time.Now().Unix(),
	}

	if err := c.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	log.Printf("📦 Order %s received (%s, %s)", order.OrderNumber, order.ItemType, order.Customer.Address)

	summary := order.ToSummary()
	c.hub.BroadcastNewOrder(summary)
	if c.push != nil {
		c.push.PushNewOrder(ctx, summary)
	}
	c.publish(ctx, "order-received", order.OrderNumber, "")

	return order, nil
}

// Accept resolves a driver's acceptance attempt. On win the order-accepted
// event goes to the whole driver pool; losers receive that same broadcast as
// their removal signal, there is no separate rejection message.
func (c *Coordinator) Accept(ctx context.Context, orderNumber, driverID string) (*models.Order, error) {
	order, err := c.store.TryAssign(ctx, orderNumber, driverID)
	if err != nil {
		return nil, err
	}

	log.Printf("🤝 Order %s accepted by driver %s", orderNumber, driverID)

	c.hub.BroadcastOrderAccepted(orderNumber, driverID)
	c.publish(ctx, "order-accepted", orderNumber, driverID)

	return order, nil
}

// Complete transitions in_transit -> delivered, clears the tracked location
// and fires the one-shot delivery-complete event to the order topic.
func (c *Coordinator) Complete(ctx context.Context, orderNumber, driverID string, override bool) (*models.Order, error) {
	order, err := c.store.MarkDelivered(ctx, orderNumber, driverID, override)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Order %s delivered (driver %s, override=%v)", orderNumber, driverID, override)

	c.hub.BroadcastDeliveryComplete(orderNumber)
	c.publish(ctx, "order-delivered", orderNumber, driverID)

	return order, nil
}

// Cancel removes an order entirely (staff action). Subscribers on the order
// topic and the assigned driver learn about it via order-cancelled, which is
// the agent's signal to drop its persisted session.
func (c *Coordinator) Cancel(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := c.store.DeleteOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	log.Printf("🗑️  Order %s cancelled by staff", orderNumber)

	c.hub.BroadcastOrderCancelled(orderNumber)
	c.publish(ctx, "order-cancelled", orderNumber, "")

	return order, nil
}

// Rate attaches a one-time rating after delivery.
func (c *Coordinator) Rate(ctx context.Context, orderNumber string, rating int) error {
	if err := c.store.SetRating(ctx, orderNumber, rating); err != nil {
		return err
	}
	c.publish(ctx, "order-rated", orderNumber, "")
	return nil
}

func (c *Coordinator) publish(ctx context.Context, event, orderNumber, driverID string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.PublishOrderEvent(ctx, event, orderNumber, driverID); err != nil {
		// Audit stream is best effort; lifecycle writes never roll back on it.
		log.Printf("⚠️  Failed to publish %s audit event for %s: %v", event, orderNumber, err)
	}
}
