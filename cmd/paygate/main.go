package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"paygate/internal/app/orders"
	"paygate/internal/app/recon"
	"paygate/internal/config"
	"paygate/internal/gateway"
	"paygate/internal/gateway/alphapay"
	"paygate/internal/gateway/bravopay"
	orders_http "paygate/internal/handler/http/orders"
	webhooks_http "paygate/internal/handler/http/webhooks"
	"paygate/internal/infrastructure/database"
	kafka_infra "paygate/internal/infrastructure/kafka"
	"paygate/internal/outbox"
	"paygate/internal/repository/event_repo"
	event_memory "paygate/internal/repository/event_repo/memory"
	event_postgres "paygate/internal/repository/event_repo/postgres"
	"paygate/internal/repository/ledger_repo"
	ledger_memory "paygate/internal/repository/ledger_repo/memory"
	ledger_postgres "paygate/internal/repository/ledger_repo/postgres"
	"paygate/internal/repository/order_repo"
	order_memory "paygate/internal/repository/order_repo/memory"
	order_postgres "paygate/internal/repository/order_repo/postgres"
	"paygate/internal/repository/outbox_repo"
	outbox_memory "paygate/internal/repository/outbox_repo/memory"
	outbox_postgres "paygate/internal/repository/outbox_repo/postgres"
)

type stores struct {
	orders order_repo.OrderRepository
	ledger ledger_repo.LedgerRepository
	events event_repo.EventRepository
	outbox outbox_repo.OutboxRepository
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Paygate starting...", zap.String("storage_driver", cfg.StorageDriver))

	var db *sql.DB
	var repos stores
	switch cfg.StorageDriver {
	case "postgres":
		db = connectWithRetry(cfg, appLogger)
		defer db.Close()
		runMigrations(cfg, appLogger)
		repos = stores{
			orders: order_postgres.NewOrderRepository(db),
			ledger: ledger_postgres.NewLedgerRepository(db),
			events: event_postgres.NewEventRepository(db),
			outbox: outbox_postgres.NewOutboxRepository(db),
		}
	case "memory":
		appLogger.Warn("Using in-memory storage; all state is lost on restart")
		repos = stores{
			orders: order_memory.NewOrderRepository(),
			ledger: ledger_memory.NewLedgerRepository(),
			events: event_memory.NewEventRepository(),
			outbox: outbox_memory.NewOutboxRepository(),
		}
	}

	registry := gateway.NewRegistry(
		alphapay.New(alphapay.Config{
			BaseURL:       cfg.AlphaPay.BaseURL,
			APIKey:        cfg.AlphaPay.APIKey,
			WebhookSecret: cfg.AlphaPay.WebhookSecret,
			Timeout:       cfg.AlphaPay.Timeout,
		}),
		bravopay.New(bravopay.Config{
			BaseURL:    cfg.BravoPay.BaseURL,
			MerchantID: cfg.BravoPay.MerchantID,
			Secret:     cfg.BravoPay.Secret,
			Timeout:    cfg.BravoPay.Timeout,
		}),
	)

	engine := recon.NewEngine(
		repos.orders, repos.ledger, repos.events, repos.outbox,
		appLogger.With(zap.String("component", "ReconciliationEngine")),
	)
	orderService := orders.NewOrderService(
		repos.orders, repos.ledger, repos.outbox, registry, engine,
		appLogger.With(zap.String("component", "OrderService")),
	)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	orders_http.RegisterRoutes(router, orderService, appLogger)
	webhooks_http.RegisterRoutes(router, registry, engine, appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	kafkaProducer := kafka_infra.NewProducer(
		cfg.GetKafkaBrokers(),
		appLogger.With(zap.String("component", "KafkaProducer")),
	)
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		repos.outbox,
		kafkaProducer,
		cfg.KafkaOrderStatusTopic,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)
	ledgerRetryer := recon.NewRetryer(
		engine,
		repos.orders,
		cfg.LedgerRetryInterval,
		20,
		appLogger.With(zap.String("component", "LedgerRetryer")),
	)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := outboxProcessor.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox processor failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := ledgerRetryer.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ledger retryer failed: %w", err)
		}
		return nil
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		appLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case <-groupCtx.Done():
		appLogger.Error("Background worker failed, shutting down")
	}

	cancelRoot()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}

	if err := group.Wait(); err != nil {
		appLogger.Error("Shutdown finished with error", zap.Error(err))
	}
	appLogger.Info("Paygate shut down.")
}

func connectWithRetry(cfg *config.Config, logger *zap.Logger) *sql.DB {
	const maxRetries = 10
	const retryDelay = 5 * time.Second

	var db *sql.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(cfg.GetDBConnectionString())
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			return db
		}
		logger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...",
			i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	logger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	return nil
}

func runMigrations(cfg *config.Config, logger *zap.Logger) {
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		logger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.Info("Database migrations completed.")
}
