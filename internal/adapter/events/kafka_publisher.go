package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/port"
)

const OrderCreatedType = "order.created"

type OrderCreated struct {
	EventID    string             `json:"event_id"`
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id"`
	ConsumerID string             `json:"consumer_id"`
	VendorID   string             `json:"vendor_id"`
	Items      []domain.OrderItem `json:"items"`
	Total      int64              `json:"total"`
	Status     string             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits one message per committed order, keyed by vendor so
// a vendor's orders stay in one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(OrderCreated{
		EventID:    uuid.NewString(),
		Type:       OrderCreatedType,
		OrderID:    order.ID,
		ConsumerID: order.ConsumerID,
		VendorID:   order.VendorID,
		Items:      order.Items,
		Total:      order.Total,
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{Key: []byte(order.VendorID), Value: data, Time: time.Now().UTC()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order %s: %w", order.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(context.Context, domain.Order) error { return nil }

func (NoopPublisher) Close() error { return nil }

type Publisher interface {
	port.EventPublisher
	Close() error
}

// New returns a Kafka publisher, or a no-op one when no brokers are set.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}
