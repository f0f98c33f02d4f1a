package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/order"
)

// publishChannel is the subset of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Sequencer hands out per-partition sequence numbers for envelopes.
type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// Publisher sends order and stock events to the events exchange. It satisfies
// both order.EventPublisher and inventory.Notifier.
type Publisher struct {
	ch                 publishChannel
	seq                Sequencer
	publishEnveloped   bool
	producerIdentifier string
	now                func() time.Time
}

var (
	_ order.EventPublisher = (*Publisher)(nil)
	_ inventory.Notifier   = (*Publisher)(nil)
)

type PublisherOptions struct {
	PublishEnveloped bool
	Producer         string
}

func NewPublisher(conn *amqp.Connection, seq Sequencer, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return newPublisher(ch, seq, opts), nil
}

func newPublisher(ch publishChannel, seq Sequencer, opts PublisherOptions) *Publisher {
	producer := opts.Producer
	if producer == "" {
		producer = defaultServiceName
	}
	return &Publisher{
		ch:                 ch,
		seq:                seq,
		publishEnveloped:   opts.PublishEnveloped,
		producerIdentifier: producer,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) OrderCreated(ctx context.Context, o order.Order) error {
	payload := OrderCreatedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Items:         orderItems(o),
		TotalAmount:   o.TotalAmount,
		Status:        string(o.Status),
		StockWarnings: len(o.StockWarnings),
		Timestamp:     o.CreatedAt,
	}
	legacy := LegacyOrderCreated{EventType: EventTypeOrderCreated, OrderCreatedPayload: payload}
	return p.publish(ctx, OrderCreatedRoutingKey, EventTypeOrderCreated, orderCreatedSchema,
		metaFromContext(ctx, o.ID), payload, legacy)
}

func (p *Publisher) OrderCancelled(ctx context.Context, o order.Order) error {
	ts := p.now()
	if o.CancelledAt != nil {
		ts = *o.CancelledAt
	}
	payload := OrderCancelledPayload{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Reason:    o.CancelReason,
		Items:     orderItems(o),
		Timestamp: ts,
	}
	legacy := LegacyOrderCancelled{EventType: EventTypeOrderCancelled, OrderCancelledPayload: payload}
	return p.publish(ctx, OrderCancelledRoutingKey, EventTypeOrderCancelled, orderCancelledSchema,
		metaFromContext(ctx, o.ID), payload, legacy)
}

// NotifyLowStock publishes a stock.low.v1 alert for the given products.
func (p *Publisher) NotifyLowStock(ctx context.Context, threshold int, products []inventory.LowStockProduct) error {
	payload := StockLowPayload{Threshold: threshold, Timestamp: p.now()}
	for _, lp := range products {
		payload.Products = append(payload.Products, LowStockLine{ProductID: lp.ProductID, Name: lp.Name, Stock: lp.Stock})
	}
	legacy := LegacyStockLow{EventType: EventTypeStockLow, StockLowPayload: payload}
	return p.publish(ctx, StockLowRoutingKey, EventTypeStockLow, stockLowSchema,
		metaFromContext(ctx, stockLowPartition), payload, legacy)
}

func (p *Publisher) publish(ctx context.Context, routingKey, eventName, schema string, meta EventMeta, payload, legacy any) error {
	if !p.publishEnveloped {
		body, err := json.Marshal(legacy)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", eventName, err)
		}
		return p.publishJSON(ctx, routingKey, body)
	}

	env, err := p.envelope(ctx, eventName, schema, meta, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventName, err)
	}
	return p.publishJSON(ctx, routingKey, body)
}

func (p *Publisher) envelope(ctx context.Context, eventName, schema string, meta EventMeta, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s payload: %w", eventName, err)
	}
	var seq int64
	if p.seq != nil {
		if seq, err = p.seq.NextSequence(ctx, meta.PartitionKey); err != nil {
			return EventEnvelope{}, fmt.Errorf("reserve sequence: %w", err)
		}
	}
	return EventEnvelope{
		EventName:     eventName,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      p.producerIdentifier,
		PartitionKey:  meta.PartitionKey,
		Sequence:      seq,
		OccurredAt:    p.now(),
		Schema:        schema,
		Payload:       raw,
	}, nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
}

func orderItems(o order.Order) []OrderItem {
	items := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return items
}
