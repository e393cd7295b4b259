/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the course points ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (app.env and environment)
  2. Build the zap logger and, if configured, the OTLP tracer
  3. Open the SQL store (SQLite or PostgreSQL)
  4. Connect the Redis balance cache when REDIS_ADDR is set
  5. Create the engine, sweeper and HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  See config/config.go for every key and its default. The most common:
    HTTP_PORT       8080
    DB_DRIVER       sqlite3 | pgx
    DB_DSN          courses.db, ":memory:" or a postgres URL
    REDIS_ADDR      empty disables the balance cache
    JWT_SECRET      required
    SWEEP_SCHEDULE  cron spec, empty disables the progress sweeper

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweeper and wait for a running sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush traces, close Redis and the database

EXAMPLES:
  # SQLite file database
  DB_DSN=./data/courses.db JWT_SECRET=dev ./server

  # PostgreSQL with Redis
  DB_DRIVER=pgx DB_DSN=postgres://localhost/courses REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - learning/engine.go: Engine options
  - store/sqldb/sqldb.go: Database implementation
*/
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/warp/course-ledger/api"
	"github.com/warp/course-ledger/cache"
	"github.com/warp/course-ledger/config"
	"github.com/warp/course-ledger/learning"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/observability"
	"github.com/warp/course-ledger/store/sqldb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "course-ledger"

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	// os.Exit skips deferred calls, so the logger is flushed by hand.
	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTelEndpoint, serviceName, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(ctx)
	}()

	// Initialize store
	store, err := sqldb.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	logger.Info("database ready", zap.String("driver", store.Driver()))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []learning.Option{
		learning.WithLogger(logger),
		learning.WithMetrics(learning.NewMetrics(reg)),
	}

	// Balance cache
	if cfg.RedisAddr != "" {
		balances, client, err := cache.Dial(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.BalanceCacheTTL,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, learning.WithBalanceCache(balances))
		logger.Info("balance cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.BalanceCacheTTL))
	}

	engine := learning.NewEngine(store, opts...)

	// Progress sweeper
	sweeper := learning.NewSweeper(engine, cfg.SweepSchedule, cfg.SweepConcurrency, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	// HTTP
	handler := api.NewHandler(engine, api.NewAuthenticator(cfg.JWTSecret, 0), logger)
	handler.WelcomeBonus = ledger.Points(cfg.WelcomeBonus)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins:  cfg.Origins(),
		EnableScenarios: cfg.EnableScenarios,
		Metrics:         api.NewHTTPMetrics(reg),
		Gatherer:        reg,
		Ping:            store.Ping,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.HTTPPort),
			zap.Bool("scenarios", cfg.EnableScenarios),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
