package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048
)

// Client represents one dispatch-channel connection. Drivers authenticate and
// belong to the pool topic; customers connect anonymously as viewers and only
// join order topics.
type Client struct {
	ID     string
	UserID string
	Role   string // "driver", "staff", "admin" or "viewer"
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	orders dispatch.OrderStore
	coord  *dispatch.Coordinator
}

// IncomingMessage represents a message from the client.
type IncomingMessage struct {
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewClient creates a new dispatch-channel client.
func NewClient(userID, role string, conn *websocket.Conn, hub *Hub, orders dispatch.OrderStore, coord *dispatch.Coordinator) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Role:   role,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		orders: orders,
		coord:  coord,
	}
}

// ReadPump pumps messages from the WebSocket connection into the hub.
// Messages from one connection are processed strictly in arrival order.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage dispatches one incoming event.
func (c *Client) handleMessage(msg IncomingMessage) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Event{Type: EventPong, Data: map[string]string{
			"timestamp": time.Now().Format(time.RFC3339),
		}})
		c.trySend(response)

	case "driver-join":
		// Idempotent pool membership confirmation. Pool fan-out keys off the
		// authenticated role, so there is nothing to store; re-joins after a
		// reconnect are no-ops.
		if c.Role != models.RoleDriver {
			log.Printf("⚠️ driver-join from non-driver connection %s ignored", c.UserID)
			return
		}
		log.Printf("🚗 Driver %s joined the dispatch pool", c.UserID)

	case "join-order":
		orderNumber, ok := msg.Data["order_number"].(string)
		if !ok || orderNumber == "" {
			log.Printf("❌ join-order without order_number")
			return
		}
		c.hub.JoinOrder(c, orderNumber)

	case "update-location":
		c.handleLocationUpdate(msg.Data)

	case "order-delivered":
		c.handleOrderDelivered(msg.Data)
	}
}

// handleLocationUpdate persists a driver fix and relays it to the order topic.
func (c *Client) handleLocationUpdate(data map[string]interface{}) {
	if c.Role != models.RoleDriver {
		log.Printf("⚠️ update-location from non-driver connection %s ignored", c.UserID)
		return
	}

	orderID, ok := data["orderId"].(string)
	if !ok || orderID == "" {
		log.Printf("❌ Invalid orderId in location update")
		return
	}
	lat, ok := data["lat"].(float64)
	if !ok {
		log.Printf("❌ Invalid lat in location update")
		return
	}
	lng, ok := data["lng"].(float64)
	if !ok {
		log.Printf("❌ Invalid lng in location update")
		return
	}
	accuracy, _ := data["accuracy"].(float64)

	// The sender's identity comes from the connection, never the payload.
	update := models.LocationUpdate{
		OrderID:  orderID,
		DriverID: c.UserID,
		Lat:      lat,
		Lng:      lng,
		Accuracy: accuracy,
	}

	if err := c.orders.RecordLocation(context.Background(), orderID, c.UserID, lat, lng); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Late sample for a finished or foreign order. Drop it.
			log.Printf("⚠️ Dropped stale location update for order %s from %s", orderID, c.UserID)
			return
		}
		log.Printf("❌ Error saving location for order %s: %v", orderID, err)
		return
	}

	c.hub.RelayLocation(update)
}

// handleOrderDelivered runs the driver's completion signal through the
// coordinator so the lifecycle write and the delivery-complete broadcast stay
// one operation.
func (c *Client) handleOrderDelivered(data map[string]interface{}) {
	if c.Role != models.RoleDriver {
		log.Printf("⚠️ order-delivered from non-driver connection %s ignored", c.UserID)
		return
	}

	orderNumber, ok := data["order_number"].(string)
	if !ok || orderNumber == "" {
		log.Printf("❌ order-delivered without order_number")
		return
	}

	if _, err := c.coord.Complete(context.Background(), orderNumber, c.UserID, false); err != nil {
		log.Printf("❌ Completion of order %s by %s rejected: %v", orderNumber, c.UserID, err)
		response, _ := json.Marshal(Event{Type: "error", Data: map[string]string{
			"order_number": orderNumber,
			"error":        err.Error(),
		}})
		c.trySend(response)
	}
}

func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued messages into the current WebSocket frame.
			// Draining the FIFO here keeps the relative order intact.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
