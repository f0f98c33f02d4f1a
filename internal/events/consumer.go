package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message body. Returning an error rejects the
// delivery, which RabbitMQ routes to the service's dead-letter queue.
type HandlerFunc func(ctx context.Context, body []byte) error

type Consumer struct {
	conn        *amqp.Connection
	serviceName string
	logger      *zap.Logger
}

func NewConsumer(conn *amqp.Connection, serviceName string, logger *zap.Logger) *Consumer {
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	return &Consumer{conn: conn, serviceName: serviceName, logger: logger}
}

// Start declares the service queue for routingKey and its dead-letter queue,
// then handles deliveries one at a time until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, routingKey string, handler HandlerFunc) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	queue := serviceQueue(c.serviceName, routingKey)
	if err := c.declare(ch, queue, routingKey); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(
		queue,
		c.serviceName, // consumer tag
		false,         // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	logger := c.logger.With(zap.String("queue", queue))
	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info("stopping consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("messages channel closed")
					return
				}
				handleDelivery(ctx, msg, handler, logger)
			}
		}
	}()

	return nil
}

func (c *Consumer) declare(ch *amqp.Channel, queue, routingKey string) error {
	if err := declareEventsExchange(ch); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if err := declareBoundQueue(ch, deadLetterExchange, queue+".dlq", routingKey, nil); err != nil {
		return err
	}
	return declareBoundQueue(ch, EventsExchange, queue, routingKey, amqp.Table{
		"x-dead-letter-exchange": deadLetterExchange,
	})
}

func handleDelivery(ctx context.Context, msg amqp.Delivery, handler HandlerFunc, logger *zap.Logger) {
	if err := handler(ctx, msg.Body); err != nil {
		logger.Error("handle message", zap.String("messageId", msg.MessageId), zap.Error(err))
		if nackErr := msg.Nack(false, false); nackErr != nil {
			logger.Error("nack", zap.Error(nackErr))
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("ack", zap.Error(err))
	}
}
