package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides access to the PostgreSQL caller registry.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL through the pgx driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const createCallersTable = `
CREATE TABLE IF NOT EXISTS callers (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name           TEXT NOT NULL,
	api_key_hash   TEXT NOT NULL,
	api_key_prefix TEXT NOT NULL UNIQUE,
	disabled       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates the callers table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createCallersTable); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}
