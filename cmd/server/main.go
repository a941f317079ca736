package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"enchant-server/internal/config"
	"enchant-server/internal/database"
	"enchant-server/internal/handler"
	appMessaging "enchant-server/internal/messaging"
	"enchant-server/internal/segmenter"
	"enchant-server/internal/service"
	"enchant-server/pkg/ai"
	"enchant-server/pkg/runtracker"
	sharedDatabase "enchant-server/shared/database"
	"enchant-server/shared/logger"
	sharedMessaging "enchant-server/shared/messaging"
	sharedMiddleware "enchant-server/shared/middleware"
)

const (
	maxConnectAttempts = 5
	connectRetryDelay  = 5 * time.Second
	trackerRetention   = time.Hour
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Starting enchant server", zap.String("env", cfg.AppEnv))

	// Database
	if err := database.ApplyMigrations(cfg.GetDSN()); err != nil {
		appLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	appLogger.Info("Migrations applied")

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := database.NewPool(poolCtx, database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		MaxConns: int32(cfg.DBMaxConns),
	})
	poolCancel()
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()
	appLogger.Info("PostgreSQL connected")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Redis connected")

	// RabbitMQ
	rabbitConn := connectRabbitMQ(cfg.RabbitMQURL, appLogger)
	defer rabbitConn.Close()

	taskPublisher, err := sharedMessaging.NewRabbitMQPublisher(rabbitConn, cfg.TaskQueueName, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create task publisher", zap.Error(err))
	}
	defer taskPublisher.Close()

	// AI client
	aiClient, err := ai.NewClient(ai.Config{
		Provider: ai.Provider(cfg.AIProvider),
		BaseURL:  cfg.AIBaseURL,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
		Timeout:  cfg.AITimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to create AI client", zap.Error(err))
	}

	// Repositories
	storyRepo := sharedDatabase.NewPgStoryRepository(pool, appLogger)
	chapterRepo := sharedDatabase.NewPgChapterRepository(pool, appLogger)
	anchorRepo := sharedDatabase.NewPgAnchorRepository(pool, appLogger)
	enhancementRepo := sharedDatabase.NewPgEnhancementRepository(pool, appLogger)
	mediaRepo := sharedDatabase.NewPgMediaRepository(pool, appLogger)
	characterRepo := sharedDatabase.NewPgCharacterRepository(pool, appLogger)
	runRepo := sharedDatabase.NewRedisRunRepository(redisClient, appLogger)

	// Services
	tracker := runtracker.New()
	sceneSegmenter := segmenter.New(aiClient, appLogger)
	storyService := service.NewStoryService(storyRepo, chapterRepo, appLogger)
	anchorService := service.NewAnchorService(anchorRepo, enhancementRepo, appLogger)
	enhancementService := service.NewEnhancementService(enhancementRepo, anchorRepo, mediaRepo, taskPublisher, appLogger)
	characterService := service.NewCharacterService(characterRepo, aiClient, appLogger)
	runService := service.NewRunService(
		service.RunConfig{
			PollInterval:      cfg.RunPollInterval,
			MaxPollAttempts:   cfg.RunMaxPollAttempts,
			WordsPerSceneHint: cfg.WordsPerSceneHint,
		},
		sceneSegmenter, storyRepo, chapterRepo,
		anchorService, enhancementService, enhancementRepo,
		runRepo, tracker, appLogger,
	)

	// Result consumer
	resultProcessor := appMessaging.NewResultProcessor(enhancementService, appLogger)
	resultConsumer := appMessaging.NewResultConsumer(rabbitConn, resultProcessor, cfg.ResultQueueName, appLogger)
	go func() {
		if err := resultConsumer.StartConsuming(); err != nil {
			appLogger.Error("Result consumer stopped", zap.Error(err))
		}
	}()

	// Periodic cleanup of finished in-memory runs.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tracker.Cleanup(trackerRetention)
			case <-cleanupDone:
				return
			}
		}
	}()

	// HTTP
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(sharedMiddleware.ZapLoggingMiddlewareForGin(appLogger), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("enchant_server")
	prom.Use(router)

	apiHandler := handler.NewHandler(
		storyService, anchorService, enhancementService, characterService, runService,
		cfg.JWTSecret, appLogger,
	)
	apiHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		appLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down...")

	close(cleanupDone)
	resultConsumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
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
