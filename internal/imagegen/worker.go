package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"enchant-server/shared/interfaces"
	sharedMessaging "enchant-server/shared/messaging"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_worker_tasks_processed_total",
			Help: "Total number of enhancement image tasks processed.",
		},
		[]string{"status"}, // "success", "error_generation", "error_publish", "error_unmarshal"
	)
	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_worker_task_duration_seconds",
		Help:    "Duration of enhancement image task processing.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	backendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_worker_backend_errors_total",
		Help: "Total number of errors calling the image backend.",
	})
	saveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_worker_save_errors_total",
		Help: "Total number of errors saving generated images.",
	})
	publishResultErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_worker_publish_result_errors_total",
		Help: "Total number of errors publishing task results.",
	})
)

// Handler processes one task delivery end to end: generate, store, publish
// the result.
type Handler struct {
	logger          *zap.Logger
	imageService    GenerationService
	resultPublisher interfaces.Publisher
	pusher          *push.Pusher
}

func NewHandler(
	logger *zap.Logger,
	imageService GenerationService,
	resultPublisher interfaces.Publisher,
	pushGatewayURL string,
) *Handler {
	if resultPublisher == nil {
		logger.Fatal("Result publisher cannot be nil for image worker handler")
	}

	var pusher *push.Pusher
	if pushGatewayURL != "" {
		hostname, _ := os.Hostname()
		pusher = push.New(pushGatewayURL, "image-worker").
			Grouping("instance", hostname).
			Gatherer(prometheus.DefaultGatherer)
		logger.Info("Prometheus pusher initialized",
			zap.String("url", pushGatewayURL), zap.String("instance", hostname))
	}

	return &Handler{
		logger:          logger.Named("Handler"),
		imageService:    imageService,
		resultPublisher: resultPublisher,
		pusher:          pusher,
	}
}

// HandleDelivery processes one task message. The return value tells the
// consume loop whether to ack: malformed tasks are acked (dropped) since
// redelivery cannot fix them, and generation failures are acked too because
// the failure is reported through the result queue instead.
func (h *Handler) HandleDelivery(ctx context.Context, msg amqp.Delivery) bool {
	defer h.pushMetrics()

	var task sharedMessaging.EnhancementImageTaskPayload
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		h.logger.Error("Failed to unmarshal task payload",
			zap.String("correlationID", msg.CorrelationId), zap.Error(err))
		tasksProcessed.WithLabelValues("error_unmarshal").Inc()
		return true
	}

	log := h.logger.With(
		zap.String("taskID", task.TaskID),
		zap.String("enhancementID", task.EnhancementID.String()))
	log.Info("Processing enhancement image task")

	start := time.Now()
	stored, genErr := h.imageService.GenerateAndStore(ctx, task)
	taskDuration.Observe(time.Since(start).Seconds())

	result := sharedMessaging.EnhancementImageResultPayload{
		TaskID:        task.TaskID,
		EnhancementID: task.EnhancementID,
		AnchorID:      task.AnchorID,
		UserID:        task.UserID,
	}
	if genErr != nil {
		log.Error("Image generation failed", zap.Error(genErr))
		result.Status = sharedMessaging.ResultStatusError
		result.ErrorDetails = genErr.Error()
		if errors.Is(genErr, ErrImageSaveFailed) {
			saveErrors.Inc()
		} else {
			backendErrors.Inc()
		}
		tasksProcessed.WithLabelValues("error_generation").Inc()
	} else {
		result.Status = sharedMessaging.ResultStatusSuccess
		result.ImageURL = stored.URL
		result.StoragePath = stored.StoragePath
		result.Width = stored.Width
		result.Height = stored.Height
		result.SizeBytes = stored.SizeBytes
		result.MimeType = stored.MimeType
		tasksProcessed.WithLabelValues("success").Inc()
	}

	if err := h.resultPublisher.Publish(ctx, result, task.TaskID); err != nil {
		log.Error("Failed to publish result", zap.Error(err))
		publishResultErrors.Inc()
		tasksProcessed.WithLabelValues("error_publish").Inc()
		// Without the result the enhancement row would stay generating
		// forever; requeue so the task runs again.
		return false
	}

	log.Info("Task finished", zap.String("status", string(result.Status)))
	return true
}

func (h *Handler) pushMetrics() {
	if h.pusher == nil {
		return
	}
	if err := h.pusher.Push(); err != nil {
		h.logger.Error("Failed to push metrics to Pushgateway", zap.Error(err))
	}
}

// Worker consumes the task queue and drives the handler.
type Worker struct {
	conn      *amqp.Connection
	handler   *Handler
	queueName string
	tag       string
	stop      chan struct{}
	logger    *zap.Logger
}

func NewWorker(conn *amqp.Connection, handler *Handler, queueName, consumerTag string, logger *zap.Logger) *Worker {
	return &Worker{
		conn:      conn,
		handler:   handler,
		queueName: queueName,
		tag:       consumerTag,
		stop:      make(chan struct{}),
		logger:    logger.Named("Worker"),
	}
}

// Run blocks, consuming tasks until Stop is called or the channel closes.
func (w *Worker) Run() error {
	ch, err := w.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := ch.Consume(q.Name, w.tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	w.logger.Info("Consuming image tasks", zap.String("queue", q.Name))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return nil
			}
			if w.handler.HandleDelivery(context.Background(), d) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, true)
			}
		case <-w.stop:
			w.logger.Info("Worker stopping")
			return nil
		}
	}
}

// Stop signals Run to return.
func (w *Worker) Stop() {
	close(w.stop)
}
