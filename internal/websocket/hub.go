package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"tawsil-backend/internal/models"
)

// Event is the wire envelope for every dispatch-channel message.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Dispatch-channel event types. Names are part of the wire contract with the
// driver and customer apps.
const (
	EventNewOrder         = "new-order"
	EventOrderAccepted    = "order-accepted"
	EventLocationUpdated  = "location-updated"
	EventDeliveryComplete = "delivery-complete"
	EventOrderCancelled   = "order-cancelled"
	EventPong             = "pong"
)

// envelope routes one serialized event to a topic. Exactly one of the target
// fields is set.
type envelope struct {
	role        string // fan out to every client with this role
	driverPool  bool   // fan out to the whole driver pool
	orderNumber string // fan out to subscribers of this order's topic
	data        []byte
}

type subscription struct {
	client      *Client
	orderNumber string
}

// Hub maintains dispatch-channel connections and topic membership: one pool
// topic for drivers plus a per-order topic for customer/staff viewers.
//
// All fan-out flows through a single run loop, so subscribers of one order
// observe location events in the exact order the driver emitted them.
type Hub struct {
	// Registered clients (connection ID -> Client)
	clients map[string]*Client

	// Per-order topic membership
	orderTopics map[string]map[*Client]bool

	// Outbound events awaiting fan-out
	broadcast chan envelope

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// join-order subscription requests
	subscribe chan subscription

	// Mutex for thread-safe map access from helper methods
	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		orderTopics: make(map[string]map[*Client]bool),
		broadcast:   make(chan envelope, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("✅ [WEBSOCKET] Client connected: %s (role: %s, total: %d)",
				client.UserID, client.Role, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				for orderNumber, members := range h.orderTopics {
					delete(members, client)
					if len(members) == 0 {
						delete(h.orderTopics, orderNumber)
					}
				}
				close(client.send)
				log.Printf("🔴 [WEBSOCKET] Client disconnected: %s (role: %s)", client.UserID, client.Role)
			}
			h.mu.Unlock()

		case sub := <-h.subscribe:
			h.mu.Lock()
			members, ok := h.orderTopics[sub.orderNumber]
			if !ok {
				members = make(map[*Client]bool)
				h.orderTopics[sub.orderNumber] = members
			}
			// Idempotent: re-subscribing after a reconnect is a no-op.
			members[sub.client] = true
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make([]*Client, 0)
	switch {
	case env.driverPool:
		for _, client := range h.clients {
			if client.Role == models.RoleDriver {
				targets = append(targets, client)
			}
		}
	case env.role != "":
		for _, client := range h.clients {
			if client.Role == env.role {
				targets = append(targets, client)
			}
		}
	case env.orderNumber != "":
		for client := range h.orderTopics[env.orderNumber] {
			targets = append(targets, client)
		}
	}

	for _, client := range targets {
		select {
		case client.send <- env.data:
		default:
			// Client buffer full: drop the client, never block the hub.
			close(client.send)
			delete(h.clients, client.ID)
			for _, members := range h.orderTopics {
				delete(members, client)
			}
			log.Printf("⚠️ Client buffer full, disconnecting: %s", client.UserID)
		}
	}
}

func (h *Hub) enqueue(env envelope, eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Printf("❌ Failed to marshal %s event: %v", eventType, err)
		return
	}
	env.data = payload
	h.broadcast <- env
}

// BroadcastNewOrder offers an unassigned order to the whole driver pool.
func (h *Hub) BroadcastNewOrder(summary models.Summary) {
	h.enqueue(envelope{driverPool: true}, EventNewOrder, summary)
}

// BroadcastOrderAccepted tells every driver the race is over. Losing drivers
// receive this as their removal signal; there is no direct rejection event.
func (h *Hub) BroadcastOrderAccepted(orderNumber, driverID string) {
	data := map[string]string{"order_number": orderNumber, "driver_id": driverID}
	h.enqueue(envelope{driverPool: true}, EventOrderAccepted, data)
}

// RelayLocation forwards a driver's location verbatim to the order's topic.
func (h *Hub) RelayLocation(update models.LocationUpdate) {
	h.enqueue(envelope{orderNumber: update.OrderID}, EventLocationUpdated, update)
}

// BroadcastDeliveryComplete fires the one-shot completion event to the order
// topic and to staff dashboards.
func (h *Hub) BroadcastDeliveryComplete(orderNumber string) {
	data := map[string]string{"order_number": orderNumber}
	h.enqueue(envelope{orderNumber: orderNumber}, EventDeliveryComplete, data)
	h.enqueue(envelope{role: models.RoleStaff}, EventDeliveryComplete, data)
}

// BroadcastOrderCancelled notifies order-topic subscribers and the driver pool
// that a staff member cancelled the order.
func (h *Hub) BroadcastOrderCancelled(orderNumber string) {
	data := map[string]string{"order_number": orderNumber}
	h.enqueue(envelope{orderNumber: orderNumber}, EventOrderCancelled, data)
	h.enqueue(envelope{driverPool: true}, EventOrderCancelled, data)
}

// JoinOrder subscribes a client to an order's topic.
func (h *Hub) JoinOrder(client *Client, orderNumber string) {
	h.subscribe <- subscription{client: client, orderNumber: orderNumber}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsUserConnected checks if a user has at least one live connection.
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID == userID {
			return true
		}
	}
	return false
}
