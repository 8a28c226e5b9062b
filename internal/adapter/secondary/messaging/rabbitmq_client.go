package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/output"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName  = "notifications"
	QueueName     = "notification_delivery"
	RoutingKey    = "notification.created"
	PrefetchCount = 1 // Deliver one message at a time per worker
)

// RabbitMQClient is a secondary adapter that implements the Notifier output port by
// publishing notifications, and consumes them again in the worker
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	pubMu   sync.Mutex
}

var _ output.Notifier = (*RabbitMQClient)(nil)

// NewRabbitMQClient connects and declares the notification exchange and queue
func NewRabbitMQClient(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
	}, nil
}

func declareTopology(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Send publishes a notification for the worker to deliver
func (c *RabbitMQClient) Send(ctx context.Context, notification output.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	err = c.channel.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	logger.FromContext(ctx).Debug("notification published",
		"kind", notification.Kind, "payment_id", notification.PaymentID)
	return nil
}

// NotificationHandler delivers one consumed notification
type NotificationHandler func(ctx context.Context, notification output.Notification) error

// ErrConsumerClosed is reported when the broker closes the delivery channel under a running consumer
var ErrConsumerClosed = errors.New("notification delivery channel closed")

// ConsumeNotifications starts consuming notifications in the background. The returned channel
// yields nil once ctx is done, or ErrConsumerClosed when the broker drops the consumer.
func (c *RabbitMQClient) ConsumeNotifications(ctx context.Context, handler NotificationHandler) (<-chan error, error) {
	err := c.channel.Qos(
		PrefetchCount,
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack (acked after delivery)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Get().Info("started consuming notifications", "queue", QueueName)

	done := make(chan error, 1)
	go func() {
		done <- consume(ctx, msgs, handler)
	}()
	return done, nil
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, handler NotificationHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrConsumerClosed
			}
			handleDelivery(ctx, msg, handler)
		}
	}
}

// handleDelivery acks delivered and undeliverable messages and requeues everything else
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler NotificationHandler) {
	log := logger.FromContext(ctx)

	var notification output.Notification
	if err := json.Unmarshal(msg.Body, &notification); err != nil {
		log.Error("dropping malformed notification", "error", err)
		msg.Ack(false)
		return
	}

	if err := handler(ctx, notification); err != nil {
		if errors.Is(err, output.ErrUndeliverable) {
			log.Warn("dropping undeliverable notification",
				"kind", notification.Kind, "payment_id", notification.PaymentID, "error", err)
			msg.Ack(false)
			return
		}
		log.Error("notification delivery failed, requeueing",
			"kind", notification.Kind, "payment_id", notification.PaymentID, "error", err)
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
