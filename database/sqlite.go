package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "modernc.org/sqlite"

	"ecosystem/analytics/config"
)

// NewSQLiteDB opens a file-backed SQLite database for single-node setups
// and tests. SQLite allows one writer, so the pool is capped at one
// connection and writers queue on it instead of failing with SQLITE_BUSY.
func NewSQLiteDB(ctx context.Context, path string, logger *slog.Logger) (*DBClient, error) {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	dsn := path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to sqlite (ping failed): %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opened sqlite database", "path", path)
	return &DBClient{DB: db, Driver: config.StoreSQLite, logger: logger}, nil
}
