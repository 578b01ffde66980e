package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"ecosystem/analytics/config"
)

// DBClient owns the shared *sql.DB pool for the event store. The pool
// connects lazily and is released once, on shutdown.
type DBClient struct {
	DB     *sql.DB
	Driver string
	logger *slog.Logger
}

// NewPostgresDB opens a bounded pool. A failed ping is logged rather than
// returned: ingestion must keep accepting events while the database is down.
func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*DBClient, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("postgres not reachable at startup, continuing", "host", cfg.Host, "port", cfg.Port, "error", err)
	} else {
		logger.Info("connected to postgres", "host", cfg.Host, "database", cfg.Name, "maxConns", cfg.MaxConns)
	}

	return &DBClient{DB: db, Driver: config.StorePostgres, logger: logger}, nil
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.logger.Error("error closing database connection", "driver", c.Driver, "error", err)
		return
	}
	c.logger.Info("database connection closed", "driver", c.Driver)
}
