package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"enchant-server/shared/interfaces"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.Publisher = (*RabbitMQPublisher)(nil)

// RabbitMQPublisher publishes JSON messages to a durable queue via the
// default exchange.
type RabbitMQPublisher struct {
	conn      *amqp091.Connection
	ch        *amqp091.Channel
	logger    *zap.Logger
	queueName string
}

// NewRabbitMQPublisher opens a channel and declares the target queue.
func NewRabbitMQPublisher(conn *amqp091.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open a channel", zap.Error(err), zap.String("queue", queueName))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		logger.Error("Failed to declare queue", zap.String("queue", queueName), zap.Error(err))
		return nil, fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}

	return &RabbitMQPublisher{
		conn:      conn,
		ch:        ch,
		logger:    logger.Named("RabbitMQPublisher"),
		queueName: queueName,
	}, nil
}

// Publish marshals the payload and sends it as a persistent message.
func (p *RabbitMQPublisher) Publish(ctx context.Context, payload interface{}, correlationID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal payload", zap.Error(err), zap.String("queue", p.queueName))
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			CorrelationId: correlationID,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish message", zap.Error(err), zap.String("queue", p.queueName))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug("Message published", zap.String("queue", p.queueName), zap.String("correlationID", correlationID))
	return nil
}

// Close releases the channel. The connection is owned by the caller.
func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
