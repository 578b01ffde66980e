package database

import (
	"context"
	"embed"
	"fmt"
)

//go:embed migrations/*.sql
var migrations embed.FS

func schema(name string) (string, error) {
	b, err := migrations.ReadFile("migrations/" + name + ".sql")
	if err != nil {
		return "", fmt.Errorf("read %s schema: %w", name, err)
	}
	return string(b), nil
}

// Migrate applies the embedded schema for the client's driver. Statements are
// idempotent (IF NOT EXISTS), so it is safe on every start.
func (c *DBClient) Migrate(ctx context.Context) error {
	sqlText, err := schema(c.Driver)
	if err != nil {
		return err
	}
	if _, err := c.DB.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("exec %s migration: %w", c.Driver, err)
	}
	return nil
}

// Migrate creates the warehouse table. ClickHouse accepts one statement per call.
func (c *ClickHouseClient) Migrate(ctx context.Context) error {
	sqlText, err := schema("clickhouse")
	if err != nil {
		return err
	}
	if err := c.Conn.Exec(ctx, sqlText); err != nil {
		return fmt.Errorf("exec clickhouse migration: %w", err)
	}
	return nil
}
