package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetmaster/internal/accounts"
	"fleetmaster/internal/config"
	"fleetmaster/internal/database/kafka"
	"fleetmaster/internal/database/mongo"
	"fleetmaster/internal/database/mysql"
	"fleetmaster/internal/database/redis"
	"fleetmaster/internal/discovery/etcd"
	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/api"
	"fleetmaster/internal/orchestrator/consumer"
	"fleetmaster/internal/orchestrator/publisher"
	"fleetmaster/internal/orchestrator/service"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/internal/orchestrator/sweeper"
	"fleetmaster/pkg/httpmiddleware"
	"fleetmaster/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)

	serviceLogger := logger.New("OrchestratorService", "", "")

	// Connect to MongoDB using the singleton GetClient
	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MongoDB")
	}
	db := mongoClient.Database(cfg.Databases.MongoDB.Database)

	// Connect to Redis for the delegate liveness cache
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Redis")
	}

	// Connect to MySQL for the account collaborator
	gormDB, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MySQL")
	}
	accountStore := accounts.NewStore(gormDB)
	if err := accountStore.AutoMigrate(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to migrate account schema")
	}

	// Ensure Kafka topics exist
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Kafka")
	}

	// Build core components
	heartbeatTTL := time.Duration(cfg.Orchestrator.HeartbeatTTLSeconds) * time.Second
	if heartbeatTTL <= 0 {
		heartbeatTTL = 5 * time.Minute
	}

	delegateStore := store.NewMongoDelegateStore(db, cfg.Orchestrator.DelegateCollection)
	taskStore := store.NewMongoTaskStore(db, cfg.Orchestrator.TaskCollection)
	livenessCache := service.NewRedisLivenessCache(redisClient, heartbeatTTL)
	eventPublisher := publisher.NewDelegateEventPublisher(cfg.Databases.Kafka.Brokers, cfg.Orchestrator.EventsTopic, serviceLogger)

	waits := service.NewWaitRegistry()
	conns := service.NewConnectionManager()
	registry := service.NewRegistry(delegateStore, eventPublisher, livenessCache, serviceLogger)
	queue := service.NewTaskQueue(taskStore, service.NewQueuedTaskNotifier(conns), serviceLogger)
	correlator := service.NewCorrelator(taskStore, waits, serviceLogger)
	coordinator := service.NewCoordinator(registry, queue, correlator, conns, serviceLogger)

	ctx, cancel := context.WithCancel(context.Background())

	// Start the Kafka response consumer when a responses topic is configured
	var responseConsumer *consumer.ResponseConsumer
	if cfg.Orchestrator.ResponsesTopic != "" {
		responseConsumer = consumer.NewResponseConsumer(
			cfg.Databases.Kafka.Brokers,
			cfg.Orchestrator.ResponsesTopic,
			cfg.Orchestrator.ResponsesGroup,
			serviceLogger,
		)
		responseConsumer.Start(ctx, func(ctx context.Context, resp *models.DelegateTaskResponse) error {
			return coordinator.SubmitResponse(ctx, resp)
		})
		serviceLogger.Info("Kafka response consumer started")
	}

	// Start the background sweeper
	fleetSweeper := sweeper.NewSweeper(
		delegateStore,
		taskStore,
		livenessCache,
		waits,
		serviceLogger,
		time.Duration(cfg.Sweeper.IntervalSeconds)*time.Second,
		time.Duration(cfg.Sweeper.DelegateTTLSeconds)*time.Second,
		time.Duration(cfg.Sweeper.TaskTTLSeconds)*time.Second,
	)
	fleetSweeper.Start(ctx)
	serviceLogger.Info("Background sweeper started")

	// Register with etcd so agents can discover the orchestrator
	var discovery *etcd.ServiceDiscovery
	var stopKeepAlive chan<- struct{}
	if len(cfg.Databases.Etcd.Endpoints) > 0 {
		discovery, err = etcd.NewServiceDiscovery(cfg.Databases.Etcd.Endpoints)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to etcd")
		}
		stopKeepAlive, err = discovery.Register(cfg.Orchestrator.ServiceName, cfg.Orchestrator.AdvertiseAddress, 10)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to register with etcd")
		}
		serviceLogger.Info("Registered with etcd as " + cfg.Orchestrator.ServiceName)
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	limiter, err := httpmiddleware.NewRateLimiter(cfg.Middleware.RateLimiter)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid rate limiter configuration")
	}
	if limiter != nil {
		router.Use(httpmiddleware.RateLimit(limiter))
	}
	breaker, err := httpmiddleware.NewCircuitBreaker(cfg.Middleware.CircuitBreaker)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid circuit breaker configuration")
	}
	if breaker != nil {
		router.Use(httpmiddleware.CircuitBreak(breaker))
	}

	apiHandler := api.NewAPI(registry, queue, coordinator, waits, accountStore, cfg.Orchestrator.AdvertiseAddress, serviceLogger)
	api.RegisterRoutes(router, apiHandler)

	srv := &http.Server{
		Addr:    cfg.Orchestrator.ServerAddress,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Server forced to shutdown")
	}

	cancel()
	if stopKeepAlive != nil {
		close(stopKeepAlive)
	}
	if discovery != nil {
		if err := discovery.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing etcd client")
		}
	}
	if err := eventPublisher.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka publisher")
	}
	if responseConsumer != nil {
		if err := responseConsumer.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka consumer")
		}
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka admin connection")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from Redis")
	}
	if err := mysql.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MySQL")
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
	}

	serviceLogger.Info("Server gracefully stopped")
}
