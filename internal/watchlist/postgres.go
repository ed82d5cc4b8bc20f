// Package watchlist holds the set of monitored Telegram entities.
//
// This file implements the PostgreSQL-backed control-surface blob.
package watchlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 5
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresBackend persists the watchlist blob in a single-row Postgres table.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend creates a Postgres backend based on provided options.
func NewPostgresBackend(opts ...Option) (*PostgresBackend, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresBackend invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresBackend DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres watchlist migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresBackend{db: db}, nil
}

// Load returns the stored blob, or empty string when no row exists.
func (p *PostgresBackend) Load(ctx context.Context) (string, error) {
	var data string
	err := p.db.QueryRowContext(ctx, `SELECT data FROM watchlist_blob WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresBackend Load failed", "error", err)
		return "", fmt.Errorf("failed to load watchlist blob: %w", err)
	}
	return data, nil
}

// Save replaces the stored blob.
func (p *PostgresBackend) Save(ctx context.Context, data string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO watchlist_blob (id, data, updated_at) VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, data)
	if err != nil {
		slog.Error("PostgresBackend Save failed", "error", err)
		return fmt.Errorf("failed to save watchlist blob: %w", err)
	}
	slog.Debug("PostgresBackend Save succeeded", "bytes", len(data))
	return nil
}

// Close closes the underlying database handle.
func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
