package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig describes where notification messages are published.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

const (
	defaultExchange   = "loandesk.notifications"
	defaultRoutingKey = "notify"
)

// Publisher is the subset of *amqp.Channel used by AMQPChannel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPChannel publishes notifications as JSON to a RabbitMQ exchange for
// downstream senders (SMS, push, chat) to consume.
type AMQPChannel struct {
	publisher  Publisher
	exchange   string
	routingKey string
}

// NewAMQPChannel wraps an existing publisher.
func NewAMQPChannel(publisher Publisher, exchange, routingKey string) (*AMQPChannel, error) {
	if publisher == nil {
		return nil, errors.New("amqp channel: publisher is required")
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = defaultExchange
	}
	if strings.TrimSpace(routingKey) == "" {
		routingKey = defaultRoutingKey
	}
	return &AMQPChannel{publisher: publisher, exchange: exchange, routingKey: routingKey}, nil
}

// DialAMQP connects to the broker, declares a durable direct exchange and returns
// a channel ready to publish plus a closer for the connection.
func DialAMQP(cfg AMQPConfig) (*AMQPChannel, func() error, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil, errors.New("amqp channel: url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp channel: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: open channel: %w", err)
	}

	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = defaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: declare exchange: %w", err)
	}

	channel, err := NewAMQPChannel(ch, exchange, cfg.RoutingKey)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return channel, closer, nil
}

// Name implements Channel.
func (c *AMQPChannel) Name() string { return "amqp" }

// Send implements Channel.
func (c *AMQPChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("amqp channel: marshal message: %w: %w", err, ErrPermanent)
	}

	if err := c.publisher.PublishWithContext(ctx, c.exchange, c.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.NotificationID,
		Type:         msg.Type,
		Timestamp:    msg.CreatedAt,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("amqp channel: publish: %w", err)
	}
	return nil
}
