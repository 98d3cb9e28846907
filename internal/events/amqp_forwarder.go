package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPrefix namespaces ticket events on the exchange.
const RoutingKeyPrefix = "feedback."

// AMQPForwarder republishes bus events on a RabbitMQ topic exchange.
type AMQPForwarder struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPForwarder dials the broker and declares a durable topic exchange.
func NewAMQPForwarder(url, exchange string) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPForwarder{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON publishes v under key.
func (f *AMQPForwarder) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.ch.PublishWithContext(ctx, f.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID(v),
		Body:         b,
	})
}

// Handle is an EventHandler that forwards the event.
func (f *AMQPForwarder) Handle(ctx context.Context, e Event) error {
	return f.PublishJSON(ctx, RoutingKey(e.Type), e)
}

// RoutingKey maps an event type to its routing key, e.g. feedback.ticket_created.
func RoutingKey(t EventType) string {
	return RoutingKeyPrefix + string(t)
}

// Close releases the channel and the connection.
func (f *AMQPForwarder) Close() error {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func messageID(v any) string {
	if e, ok := v.(Event); ok {
		return e.ID
	}
	return ""
}
