package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Topic carrying the order lifecycle audit stream.
const OrderEventsTopic = "order-events"

// OrderEvent is the audit record for one lifecycle transition.
type OrderEvent struct {
	Event       string `json:"event"`
	OrderNumber string `json:"order_number"`
	DriverID    string `json:"driver_id,omitempty"`
	OccurredAt  int64  `json:"occurred_at"`
}

// SaramaPublisher streams order lifecycle events to Kafka so downstream
// consumers (analytics, billing) see every transition without querying the
// dispatch database.
type SaramaPublisher struct {
	producer sarama.SyncProducer
}

func NewSaramaPublisher(brokers []string) (*SaramaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &SaramaPublisher{producer: prod}, nil
}

// PublishOrderEvent sends one lifecycle event. Keyed by order number so all
// events of one order land on the same partition, in order.
func (p *SaramaPublisher) PublishOrderEvent(ctx context.Context, event, orderNumber, driverID string) error {
	payload, err := json.Marshal(OrderEvent{
		Event:       event,
		OrderNumber: orderNumber,
		DriverID:    driverID,
		OccurredAt:  time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: OrderEventsTopic,
		Key:   sarama.StringEncoder(orderNumber),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("Failed to send %s event for order %s: %v", event, orderNumber, err)
		return err
	}
	log.Printf("Audit event stored in topic(%s)/partition(%d)/offset(%d)", OrderEventsTopic, partition, offset)
	return nil
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
