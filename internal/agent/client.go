package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"tawsil-backend/internal/models"
)

// Outgoing event types.
const (
	eventDriverJoin     = "driver-join"
	eventJoinOrder      = "join-order"
	eventUpdateLocation = "update-location"
	eventOrderDelivered = "order-delivered"
)

// Incoming event types.
const (
	eventNewOrder         = "new-order"
	eventOrderAccepted    = "order-accepted"
	eventOrderCancelled   = "order-cancelled"
	eventLocationUpdated  = "location-updated"
	eventDeliveryComplete = "delivery-complete"
	eventError            = "error"
)

type outboundEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventHandlers receive decoded server events. Handlers run on the client's
// read goroutine, so events arrive in publish order; keep them short.
type EventHandlers struct {
	OnNewOrder         func(models.Summary)
	OnOrderAccepted    func(orderNumber, driverID string)
	OnOrderCancelled   func(orderNumber string)
	OnLocationUpdated  func(models.LocationUpdate)
	OnDeliveryComplete func(orderNumber string)
	OnServerError      func(message string)

	// OnConnected fires after every successful (re)connect, once the session
	// topics have been rejoined. OnDisconnected fires when a connection drops.
	OnConnected    func()
	OnDisconnected func(err error)
}

// ChannelClient maintains the driver's realtime connection to the dispatch
// server. It reconnects with exponential backoff and rejoins its topics after
// every reconnect, since topic membership is connection-scoped on the server.
type ChannelClient struct {
	serverURL string
	token     string
	handlers  EventHandlers

	mu          sync.Mutex
	conn        *websocket.Conn
	joinedOrder string
}

func NewChannelClient(serverURL, token string, handlers EventHandlers) *ChannelClient {
	return &ChannelClient{
		serverURL: serverURL,
		token:     token,
		handlers:  handlers,
	}
}

// Run connects and keeps the connection alive until ctx is cancelled. Each
// drop triggers a fresh backoff cycle; a successful connect resets it.
func (c *ChannelClient) Run(ctx context.Context) error {
	for {
		backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))

		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := c.connect(ctx); err != nil {
				log.Printf("⚠️ Channel connect failed, retrying: %v", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("channel connect: %w", err)
		}

		// Blocks until the connection drops or ctx ends.
		readErr := c.readLoop(ctx)
		if c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected(readErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("⚠️ Channel connection lost: %v", readErr)
	}
}

func (c *ChannelClient) connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	joined := c.joinedOrder
	c.mu.Unlock()

	// Topic membership does not survive reconnects; rejoin before anything
	// else so no broadcast lands in the gap.
	if err := c.send(outboundEvent{Type: eventDriverJoin}); err != nil {
		return err
	}
	if joined != "" {
		if err := c.send(outboundEvent{Type: eventJoinOrder, Data: map[string]string{"order_number": joined}}); err != nil {
			return err
		}
	}

	if c.handlers.OnConnected != nil {
		c.handlers.OnConnected()
	}
	log.Println("✅ Channel connected")
	return nil
}

func (c *ChannelClient) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("⚠️ Bad channel payload: %v", err)
			continue
		}
		c.dispatch(event)
	}
}

func (c *ChannelClient) dispatch(event inboundEvent) {
	switch event.Type {
	case eventNewOrder:
		var summary models.Summary
		if json.Unmarshal(event.Data, &summary) == nil && c.handlers.OnNewOrder != nil {
			c.handlers.OnNewOrder(summary)
		}
	case eventOrderAccepted:
		var data struct {
			OrderNumber string `json:"order_number"`
			DriverID    string `json:"driver_id"`
		}
		if json.Unmarshal(event.Data, &data) == nil && c.handlers.OnOrderAccepted != nil {
			c.handlers.OnOrderAccepted(data.OrderNumber, data.DriverID)
		}
	case eventOrderCancelled:
		var data struct {
			OrderNumber string `json:"order_number"`
		}
		if json.Unmarshal(event.Data, &data) == nil && c.handlers.OnOrderCancelled != nil {
			c.handlers.OnOrderCancelled(data.OrderNumber)
		}
	case eventLocationUpdated:
		var update models.LocationUpdate
		if json.Unmarshal(event.Data, &update) == nil && c.handlers.OnLocationUpdated != nil {
			c.handlers.OnLocationUpdated(update)
		}
	case eventDeliveryComplete:
		var data struct {
			OrderNumber string `json:"order_number"`
		}
		if json.Unmarshal(event.Data, &data) == nil && c.handlers.OnDeliveryComplete != nil {
			c.handlers.OnDeliveryComplete(data.OrderNumber)
		}
	case eventError:
		var data struct {
			OrderNumber string `json:"order_number"`
			Error       string `json:"error"`
		}
		if json.Unmarshal(event.Data, &data) == nil && c.handlers.OnServerError != nil {
			c.handlers.OnServerError(data.Error)
		}
	}
}

// JoinOrder subscribes to one order's tracking topic and remembers it so the
// subscription survives reconnects.
func (c *ChannelClient) JoinOrder(orderNumber string) error {
	c.mu.Lock()
	c.joinedOrder = orderNumber
	c.mu.Unlock()
	return c.send(outboundEvent{Type: eventJoinOrder, Data: map[string]string{"order_number": orderNumber}})
}

// LeaveOrder forgets the tracked order so reconnects stop rejoining it.
func (c *ChannelClient) LeaveOrder() {
	c.mu.Lock()
	c.joinedOrder = ""
	c.mu.Unlock()
}

// SendLocation pushes one accepted GPS sample to the server. A send into a
// dead connection is dropped; the next sample goes out after reconnect.
func (c *ChannelClient) SendLocation(update models.LocationUpdate) error {
	return c.send(outboundEvent{Type: eventUpdateLocation, Data: update})
}

// SendDelivered reports delivery completion over the channel.
func (c *ChannelClient) SendDelivered(orderNumber string) error {
	return c.send(outboundEvent{Type: eventOrderDelivered, Data: map[string]string{"order_number": orderNumber}})
}

func (c *ChannelClient) send(event outboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(event)
}

// Close tears down the current connection.
func (c *ChannelClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
