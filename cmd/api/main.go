package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cimillas/storefront/internal/app"
	"github.com/cimillas/storefront/internal/clock"
	"github.com/cimillas/storefront/internal/config"
	"github.com/cimillas/storefront/internal/idempotency"
	"github.com/cimillas/storefront/internal/logging"
	"github.com/cimillas/storefront/internal/messaging/kafka"
	"github.com/cimillas/storefront/internal/metrics"
	"github.com/cimillas/storefront/internal/outbox"
	"github.com/cimillas/storefront/internal/storage/postgres"
	transporthttp "github.com/cimillas/storefront/internal/transport/http"
	"github.com/cimillas/storefront/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so report this one plainly.
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.App.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.OpenPool(startupCtx, cfg.DB.DSN(), postgres.PoolOptions{
		MaxConns:    cfg.DB.MaxConns,
		LockTimeout: cfg.DB.LockTimeout,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Strings("files", applied))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	txm := postgres.NewTxManager(pool)
	productRepo := postgres.NewProductRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	orderOpts := []app.OrderOption{
		app.WithOrderLogger(logger.Named("orders")),
		app.WithOrderMetrics(m),
	}
	if cfg.Kafka.Enabled() {
		orderOpts = append(orderOpts, app.WithOrderEvents(outboxRepo, cfg.Kafka.OrderTopic))
	}
	orderSvc := app.NewOrderService(txm, productRepo, postgres.NewOrderRepository(pool), clock.NewSystem(), orderOpts...)
	productSvc := app.NewProductService(productRepo, logger.Named("products"))

	deps := transporthttp.RouterDeps{
		Orders:         orderSvc,
		Products:       productSvc,
		ProductToken:   cfg.Auth.ProductToken,
		OrderToken:     cfg.Auth.OrderToken,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		Logger:         logger.Named("http"),
		Metrics:        m,
		MetricsHandler: metrics.Handler(registry),
		DB:             pool,
	}
	if cfg.Auth.ProductToken == "" || cfg.Auth.OrderToken == "" {
		logger.Warn("PRODUCT_TOKEN or ORDER_TOKEN not set, the matching routes reject every request")
	}

	if cfg.Redis.URL != "" {
		store, err := idempotency.NewRedisStore(cfg.Redis.URL, cfg.Redis.IdempotencyTTL)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		deps.Idempotency = store
		logger.Info("idempotency keys enabled", zap.Duration("ttl", cfg.Redis.IdempotencyTTL))
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayDone := make(chan struct{})
	if cfg.Kafka.Enabled() {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers)
		defer func() { _ = pub.Close() }()
		relay := outbox.NewRelay(txm, outboxRepo, pub, outbox.Config{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		}, logger.Named("outbox"), m)
		go func() {
			defer close(relayDone)
			_ = relay.Run(stopCtx)
		}()
	} else {
		close(relayDone)
		logger.Info("KAFKA_BROKERS not set, order events are not recorded")
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           transporthttp.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("api listening", zap.String("addr", server.Addr), zap.String("env", cfg.App.Env))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
		stop()
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-relayDone
	logger.Info("server stopped")
	return serveErr
}
