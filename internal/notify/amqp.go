package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationExchange = "chamber.notifications"

// AMQPNotifier publishes notifications to a RabbitMQ topic exchange so
// dashboards and alerting consumers can subscribe by level.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPNotifier connects to RabbitMQ and declares the notification
// exchange.
func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	n := &AMQPNotifier{
		conn:    conn,
		channel: ch,
	}

	if err := n.setup(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

func (n *AMQPNotifier) setup() error {
	if err := n.channel.ExchangeDeclare(
		notificationExchange, // name
		"topic",              // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	); err != nil {
		return fmt.Errorf("failed to declare notifications exchange: %w", err)
	}

	slog.Info("amqp notifier setup completed", slog.String("exchange", notificationExchange))
	return nil
}

func (n *AMQPNotifier) Success(ctx context.Context, title, message string) {
	n.publish(ctx, LevelSuccess, title, message)
}

func (n *AMQPNotifier) Error(ctx context.Context, title, message string) {
	n.publish(ctx, LevelError, title, message)
}

func (n *AMQPNotifier) Warning(ctx context.Context, title, message string) {
	n.publish(ctx, LevelWarning, title, message)
}

func (n *AMQPNotifier) Info(ctx context.Context, title, message string) {
	n.publish(ctx, LevelInfo, title, message)
}

// publish sends the notification with routing key "notification.<level>".
// Delivery failures are logged, never propagated: a broker outage must not
// disturb the agent's core loop.
func (n *AMQPNotifier) publish(ctx context.Context, level Level, title, message string) {
	notification := newNotification(level, title, message)

	body, err := json.Marshal(notification)
	if err != nil {
		slog.Error("failed to marshal notification", slog.String("error", err.Error()))
		return
	}

	err = n.channel.PublishWithContext(
		ctx,
		notificationExchange,
		"notification."+string(level),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		slog.Error("failed to publish notification",
			slog.String("level", string(level)),
			slog.String("title", title),
			slog.String("error", err.Error()))
		return
	}

	slog.Debug("published notification",
		slog.String("level", string(level)),
		slog.String("title", title))
}

func (n *AMQPNotifier) IsClosed() bool {
	return n.conn == nil || n.conn.IsClosed()
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
