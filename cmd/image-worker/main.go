package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"enchant-server/internal/imagegen"
	"enchant-server/shared/logger"
	sharedMessaging "enchant-server/shared/messaging"
)

const (
	maxConnectAttempts = 5
	connectRetryDelay  = 5 * time.Second
)

func main() {
	cfg := imagegen.LoadConfig()

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Starting image worker", zap.String("env", cfg.AppEnv))

	imageService, err := imagegen.NewGenerationService(appLogger, cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize generation service", zap.Error(err))
	}

	conn := connectRabbitMQ(cfg.RabbitMQ.URL, appLogger)
	defer conn.Close()

	resultPublisher, err := sharedMessaging.NewRabbitMQPublisher(conn, cfg.RabbitMQ.ResultQueueName, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create result publisher", zap.Error(err))
	}
	defer resultPublisher.Close()

	messageHandler := imagegen.NewHandler(appLogger, imageService, resultPublisher, cfg.PushGatewayURL)
	worker := imagegen.NewWorker(conn, messageHandler, cfg.RabbitMQ.TaskQueueName, cfg.RabbitMQ.ConsumerName, appLogger)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run()
	}()
	appLogger.Info("Image worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down image worker...")
		worker.Stop()
		<-done
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker exited with error", zap.Error(err))
		}
	}
	appLogger.Info("Image worker stopped")
}

func connectRabbitMQ(url string, logger *zap.Logger) *amqp.Connection {
	for attempt := 1; ; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("RabbitMQ connected")
			return conn
		}
		logger.Error("Failed to connect to RabbitMQ", zap.Int("attempt", attempt), zap.Error(err))
		if attempt >= maxConnectAttempts {
			logger.Fatal("Max RabbitMQ connect attempts reached")
		}
		time.Sleep(connectRetryDelay)
	}
}
