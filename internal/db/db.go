package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
)

// ErrNotFound is returned when no subscriber exists for a number.
var ErrNotFound = errors.New("subscriber not found")

// Store is the subscriber persistence layer.
type Store struct {
	db *sqlx.DB
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	if dbURL == "" {
		return nil, errors.New("database url is empty")
	}

	conn, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(conn), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the subscribers table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS subscribers (
		number TEXT PRIMARY KEY,
		subscribed BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := s.db.ExecContext(ctx, tbl); err != nil {
		return fmt.Errorf("failed to create subscribers table: %w", err)
	}

	const idx = `
	CREATE INDEX IF NOT EXISTS idx_subscribers_subscribed
		ON subscribers (number) WHERE subscribed`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create subscribers index: %w", err)
	}
	return nil
}
