package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ecosystem/analytics/config"
	"ecosystem/analytics/database"
	"ecosystem/analytics/handlers"
	"ecosystem/analytics/ingest"
	"ecosystem/analytics/logging"
	"ecosystem/analytics/messaging"
	"ecosystem/analytics/store"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.ServiceName, cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("No .env file loaded", "error", envErr)
	}

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Analytics service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// --- Event store (system of record) ---
	dbClient, err := openEventStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	var analyticsStore *store.AnalyticsStore
	if dbClient.Driver == config.StoreSQLite {
		analyticsStore = store.NewSQLiteAnalyticsStore(dbClient.DB)
	} else {
		analyticsStore = store.NewPostgresAnalyticsStore(dbClient.DB)
	}

	// --- Optional ClickHouse mirror ---
	var warehouse *store.WarehouseStore
	if cfg.WarehouseEnabled() {
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, cfg.ServiceName, logger)
		if err != nil {
			logger.Error("ClickHouse unavailable, continuing without warehouse mirror", "error", err)
		} else {
			defer chClient.Close()
			if cfg.AutoMigrate {
				if err := chClient.Migrate(ctx); err != nil {
					logger.Warn("ClickHouse migration failed", "error", err)
				}
			}
			warehouse = store.NewWarehouseStore(chClient)
		}
	}

	// --- Bus publisher ---
	producer := messaging.NewProducer(cfg.Kafka, cfg.Topic(), logger)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("Error closing kafka producer", "error", err)
		}
	}()

	// --- Background fan-out ---
	dispatcher := ingest.NewDispatcher(cfg.IngestQueueSize, cfg.IngestWorkers, cfg.TaskTimeout, logger)
	dispatcher.Start()

	svc := ingest.NewService(analyticsStore, producer, dispatcher, logger).
		WithBatchLimits(cfg.BatchConcurrency, 0)

	deps := handlers.RouterDeps{
		Config:   cfg,
		Logger:   logger,
		Service:  svc,
		Journeys: analyticsStore,
	}
	if warehouse != nil {
		svc.WithMirror(warehouse)
		deps.Stats = warehouse
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Analytics service listening", "addr", cfg.Addr(), "topic", cfg.Topic(), "store", dbClient.Driver, "warehouse", warehouse != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down analytics service")
	}

	// HTTP first so no new work arrives, then drain background tasks before
	// the deferred producer and store closes run.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", "error", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.TaskTimeout+5*time.Second)
	defer cancelDrain()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn("Background tasks did not drain", "error", err, "stats", dispatcher.Stats())
	}

	logger.Info("Analytics service exiting")
	return nil
}

func openEventStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*database.DBClient, error) {
	var (
		client *database.DBClient
		err    error
	)
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		client, err = database.NewSQLiteDB(ctx, cfg.SQLitePath, logger)
	case config.StorePostgres:
		client, err = database.NewPostgresDB(ctx, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unknown ANALYTICS_STORE %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		// The database may still be starting; ingestion keeps accepting regardless.
		if err := client.Migrate(migrateCtx); err != nil {
			logger.Warn("Schema migration failed", "driver", client.Driver, "error", err)
		}
	}
	return client, nil
}
