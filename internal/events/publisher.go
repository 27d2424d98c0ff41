// Package events publishes order lifecycle notifications to Kafka. Delivery
// is best-effort by design: the database is the source of truth, so publish
// failures are logged and never bubble into the request that triggered them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/valyxa/storefront/internal/domain/order"
)

// Event types emitted on the order topic.
const (
	TypeOrderCreated       = "order.created"
	TypeOrderPaid          = "order.paid"
	TypeOrderStatusChanged = "order.status_changed"
)

// Envelope is the JSON message written to the order topic. Messages are
// keyed by order ID so consumers see one order's events in order.
type Envelope struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	TotalAmount   string    `json:"total_amount"`
	PaymentMethod string    `json:"payment_method"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// KafkaPublisher emits order events through a synchronous producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ order.EventSink = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects a synchronous producer to the given brokers.
// WaitForAll acks: an event is either on every in-sync replica or logged as
// lost, never silently half-delivered.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Close shuts down the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// OrderCreated publishes an order.created event.
func (p *KafkaPublisher) OrderCreated(ctx context.Context, o *order.Order) {
	p.publish(ctx, TypeOrderCreated, o)
}

// OrderPaid publishes an order.paid event.
func (p *KafkaPublisher) OrderPaid(ctx context.Context, o *order.Order) {
	p.publish(ctx, TypeOrderPaid, o)
}

// OrderStatusChanged publishes an order.status_changed event.
func (p *KafkaPublisher) OrderStatusChanged(ctx context.Context, o *order.Order) {
	p.publish(ctx, TypeOrderStatusChanged, o)
}

func (p *KafkaPublisher) publish(ctx context.Context, typ string, o *order.Order) {
	env := Envelope{
		Type:          typ,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount.String(),
		PaymentMethod: string(o.PaymentMethod),
		OccurredAt:    time.Now().UTC(),
	}

	value, err := json.Marshal(env)
	if err != nil {
		zctx.From(ctx).Error("marshal order event", zap.Error(err))
		return
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(o.ID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		zctx.From(ctx).Error("publish order event",
			zap.String("type", typ),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
