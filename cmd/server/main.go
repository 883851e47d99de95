package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/billing/backend/internal/application/billing"
	"github.com/billing/backend/internal/domain/payment"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/infrastructure/cache"
	"github.com/billing/backend/internal/infrastructure/clock"
	"github.com/billing/backend/internal/infrastructure/config"
	"github.com/billing/backend/internal/infrastructure/event"
	"github.com/billing/backend/internal/infrastructure/gateway"
	"github.com/billing/backend/internal/infrastructure/logger"
	"github.com/billing/backend/internal/infrastructure/persistence"
	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"github.com/billing/backend/internal/infrastructure/scheduler"
	"github.com/billing/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Initialize telemetry
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithGormLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := db.AutoMigrate(&models.InvoiceModel{}, &models.PaymentModel{}, &models.RefundModel{}); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	// Initialize repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	refundRepo := persistence.NewGormRefundRepository(db.DB)
	settlementStore := persistence.NewGormSettlementStore(db.DB)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Idempotency store for event handlers: Redis when reachable, in-memory otherwise
	var idempotencyStore shared.IdempotencyStore
	redisStore, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using in-memory idempotency store", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idempotencyStore = redisStore
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Subscribe the completion listener behind idempotent delivery
	completionListener := billingapp.NewCompletionListener(log)
	idempotentListener := event.NewIdempotentHandler(completionListener, idempotencyStore, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{
			TTL:     cfg.Event.IdempotencyTTL,
			Enabled: cfg.Event.IdempotencyEnabled,
		}),
	)
	eventBus.Subscribe(idempotentListener)
	log.Info("Completion listener registered", zap.Strings("event_types", completionListener.EventTypes()))

	// Gateway plugin registry
	registry := gateway.NewRegistry()
	registry.Register(gateway.NewMockPlugin())
	plugin, err := registry.Get(cfg.Gateway.Plugin)
	if err != nil {
		log.Fatal("Payment gateway plugin not registered",
			zap.String("plugin", cfg.Gateway.Plugin),
			zap.Strings("available", registry.Names()),
			zap.Error(err),
		)
	}
	log.Info("Payment gateway configured", zap.String("plugin", plugin.Name()))

	// Retry policy derived from configuration
	retrySchedule := make([]time.Duration, cfg.Retry.MaxRetries)
	for i := range retrySchedule {
		retrySchedule[i] = time.Duration(cfg.Retry.IntervalDays) * 24 * time.Hour
	}
	retryPolicy := payment.RetryPolicy{Schedule: retrySchedule}

	systemClock := clock.NewSystemClock()

	// Initialize application services. All invoice-mutating services must
	// share one lock table.
	invoiceLocks := billingapp.NewInvoiceLocks()
	paymentService := billingapp.NewPaymentService(billingapp.PaymentServiceConfig{
		InvoiceRepo:    invoiceRepo,
		PaymentRepo:    paymentRepo,
		RefundRepo:     refundRepo,
		Settlements:    settlementStore,
		Gateway:        plugin,
		RetryPolicy:    retryPolicy,
		Clock:          systemClock,
		EventPublisher: eventBus,
		Logger:         log,
		Locks:          invoiceLocks,
	})

	// Start the payment retry scheduler
	retryScheduler := scheduler.NewPaymentRetryScheduler(paymentService, log, scheduler.PaymentRetrySchedulerConfig{
		Enabled:      cfg.Retry.Enabled,
		PollInterval: cfg.Retry.PollInterval,
		BatchLimit:   cfg.Retry.BatchLimit,
		RunTimeout:   cfg.Retry.RunTimeout,
	})
	if err := retryScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start payment retry scheduler", zap.Error(err))
	}
	defer func() {
		if err := retryScheduler.Stop(context.Background()); err != nil {
			log.Error("Error stopping payment retry scheduler", zap.Error(err))
		}
	}()

	log.Info("Billing backend started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down billing backend")
}
