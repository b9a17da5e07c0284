package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockd/config"
	"stockd/internal/api"
	"stockd/internal/broker"
	"stockd/internal/realtime"
	"stockd/internal/redisclient"
	"stockd/internal/service"
	"stockd/internal/store"
	"stockd/internal/store/memory"
	"stockd/internal/txn"
	"stockd/internal/util"
	"stockd/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock service")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	var backend txn.Backend
	var readiness []namedCheck
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart",
			zap.Bool("transactions", cfg.Database.MemoryTransactions),
		)
		var opts []memory.Option
		if cfg.Database.MemoryTransactions {
			opts = append(opts, memory.WithTransactions())
		}
		backend = memory.New(opts...)
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Database connected")

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				logger.Fatal("Failed to migrate database", zap.Error(err))
			}
		}
		backend = db
		readiness = append(readiness, namedCheck{"database", db.Ping})
	}

	coordinator, err := txn.NewCoordinator(ctx, backend, txn.Config{
		MaxRetries:  cfg.Transactions.MaxRetries,
		BackoffUnit: cfg.Transactions.BackoffUnit,
	})
	if err != nil {
		logger.Fatal("Failed to check storage capabilities", zap.Error(err))
	}
	logger.Info("Transaction coordinator ready", zap.Bool("transactional", coordinator.Transactional()))

	hub := realtime.NewHub(realtime.DefaultBuffer)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var notifier service.Notifier = hub
	var notificationWorker *worker.NotificationWorker
	if cfg.Notifications.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer producer.Close()
		kafkaNotifier := broker.NewKafkaNotifier(producer, cfg.Kafka.NotifyQueueSize)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, hub)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("Kafka disabled, delivering notifications in process")
	}

	repos := backend.Repositories()
	movements := service.NewMovementRecorder(repos)
	handler := api.NewHandler(api.Services{
		Products:       service.NewProductService(coordinator, repos, movements, notifier),
		Orders:         service.NewOrderService(coordinator, repos, movements, notifier),
		PurchaseOrders: service.NewPurchaseOrderService(coordinator, repos, movements, notifier),
		Movements:      movements,
		Suppliers:      service.NewSupplierService(repos),
		Dashboard:      service.NewDashboardService(repos),
		Hub:            hub,
	}, cfg.Auth.JWTSecret)

	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		handler.WithRedis(redisClient, cfg.Redis.CacheTTL)
		readiness = append(readiness, namedCheck{"redis", redisClient.Ping})
	}

	for _, check := range readiness {
		handler.WithReadinessCheck(check.name, check.fn)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Error("Failed to stop notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

type namedCheck struct {
	name string
	fn   api.ReadinessCheck
}
