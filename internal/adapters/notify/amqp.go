package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// ExchangeName is the topic exchange notification events are published to
const ExchangeName = "subscriptions.notifications"

// Event is the message body published for each notification
type Event struct {
	OccurredAt time.Time           `json:"occurred_at"`
	Data       map[string]any      `json:"data"`
	Customer   domain.Customer     `json:"customer"`
	Template   domain.TemplateKind `json:"template"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notification events for an external mailer to consume.
// Routing keys are "notification.<template>".
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  publisher
	logger   ports.Logger
	now      func() time.Time
	exchange string
	mu       sync.Mutex
}

var _ ports.Notifier = (*AMQPNotifier)(nil)

// NewAMQPNotifier connects to RabbitMQ and declares the exchange
func NewAMQPNotifier(url string, logger ports.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ notifier connected",
		ports.String("exchange", ExchangeName))

	n := newAMQPNotifier(ch, logger)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch publisher, logger ports.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		channel:  ch,
		logger:   logger,
		now:      time.Now,
		exchange: ExchangeName,
	}
}

// Send publishes one persistent notification event
func (n *AMQPNotifier) Send(ctx context.Context, customer domain.Customer, kind domain.TemplateKind, data map[string]any) error {
	payload, err := json.Marshal(Event{
		OccurredAt: n.now().UTC(),
		Data:       data,
		Customer:   customer,
		Template:   kind,
	})
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	routingKey := "notification." + string(kind)
	err = n.channel.PublishWithContext(ctx,
		n.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    n.now(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	n.logger.Debug("notification published",
		ports.String("routing_key", routingKey),
		ports.Int("size", len(payload)))
	return nil
}

// Close closes the channel and connection
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.channel.Close(); err != nil {
		n.logger.Warn("error closing channel", ports.Err(err))
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
