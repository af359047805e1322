// Package db provides database connection handling for the tour API.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
)

// Pool sizing defaults tuned for short request-scoped transactions.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

// Open constructs a lifetime-scoped connection handle for the given
// PostgreSQL URL and verifies connectivity. The handle is injected into
// each repository at construction; no package-level state is held.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	handle, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	handle.SetMaxOpenConns(DefaultMaxOpenConns)
	handle.SetMaxIdleConns(DefaultMaxIdleConns)
	handle.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return handle, nil
}
