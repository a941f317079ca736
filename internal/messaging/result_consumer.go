package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"enchant-server/internal/service"
	sharedMessaging "enchant-server/shared/messaging"
	"enchant-server/shared/models"
)

const processTimeout = 15 * time.Second

// ResultProcessor applies one image-generation result to the enhancement
// state machine. Separated from the consumer for testability.
type ResultProcessor struct {
	enhancements *service.EnhancementService
	logger       *zap.Logger
}

func NewResultProcessor(enhancements *service.EnhancementService, logger *zap.Logger) *ResultProcessor {
	return &ResultProcessor{
		enhancements: enhancements,
		logger:       logger.Named("ResultProcessor"),
	}
}

// Process maps a worker result onto the enhancement row. Results for rows
// that are already terminal (duplicate deliveries, completions racing a
// manual retry) are dropped silently; results for rows that no longer exist
// (cascaded away with their chapter) likewise. A result arriving after the
// orchestrator's polling timeout is applied like any other: the caller
// already got a timeout error, but the generated image is not thrown away.
func (p *ResultProcessor) Process(ctx context.Context, body []byte) error {
	var result sharedMessaging.EnhancementImageResultPayload
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode result payload: %w", err)
	}
	if result.EnhancementID == uuid.Nil {
		return fmt.Errorf("result payload without enhancement id (taskId=%s)", result.TaskID)
	}

	logger := p.logger.With(
		zap.String("taskID", result.TaskID),
		zap.String("enhancementID", result.EnhancementID.String()))

	var err error
	switch result.Status {
	case sharedMessaging.ResultStatusSuccess:
		err = p.enhancements.Complete(ctx, result.EnhancementID, service.CompletedImage{
			UserID:      result.UserID,
			URL:         result.ImageURL,
			StoragePath: result.StoragePath,
			Width:       result.Width,
			Height:      result.Height,
			SizeBytes:   result.SizeBytes,
			MimeType:    result.MimeType,
		})
	case sharedMessaging.ResultStatusError:
		reason := result.ErrorDetails
		if reason == "" {
			reason = "image generation failed"
		}
		err = p.enhancements.Fail(ctx, result.EnhancementID, reason)
	default:
		return fmt.Errorf("unknown result status %q (taskId=%s)", result.Status, result.TaskID)
	}

	if err != nil {
		if errors.Is(err, models.ErrEnhancementTerminal) {
			logger.Info("Result for terminal enhancement dropped")
			return nil
		}
		if errors.Is(err, models.ErrNotFound) {
			logger.Info("Result for deleted enhancement dropped")
			return nil
		}
		return fmt.Errorf("failed to apply result: %w", err)
	}

	logger.Info("Result applied", zap.String("status", string(result.Status)))
	return nil
}

// ResultConsumer listens on the results queue and feeds the processor.
type ResultConsumer struct {
	conn      *amqp.Connection
	processor *ResultProcessor
	queueName string
	stop      chan struct{}
	logger    *zap.Logger
}

func NewResultConsumer(conn *amqp.Connection, processor *ResultProcessor, queueName string, logger *zap.Logger) *ResultConsumer {
	return &ResultConsumer{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		stop:      make(chan struct{}),
		logger:    logger.Named("ResultConsumer"),
	}
}

// StartConsuming blocks, processing results until Stop is called or the
// channel closes. Messages are acked only after processing so a crash
// mid-apply redelivers; the processor tolerates the resulting duplicates.
func (c *ResultConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", c.queueName, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"enhancement-result-consumer",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Consuming image results", zap.String("queue", q.Name))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
			err := c.processor.Process(ctx, d.Body)
			cancel()
			if err != nil {
				c.logger.Error("Failed to process result", zap.Error(err))
				// Malformed or unappliable payloads are not requeued: they
				// would fail identically forever.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)

		case <-c.stop:
			c.logger.Info("Consumer stopping")
			return nil
		}
	}
}

// Stop signals StartConsuming to return.
func (c *ResultConsumer) Stop() {
	close(c.stop)
}
