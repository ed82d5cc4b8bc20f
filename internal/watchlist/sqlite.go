// Package watchlist holds the set of monitored Telegram entities.
//
// This file implements the SQLite-backed control-surface blob.
package watchlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteBackend persists the watchlist blob in a single-row SQLite table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates a SQLite backend with the given options. The DSN
// is a file path; the parent directory is created if missing.
func NewSQLiteBackend(opts ...Option) (*SQLiteBackend, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteBackend invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteBackend DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite watchlist migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load returns the stored blob, or empty string when no row exists.
func (s *SQLiteBackend) Load(ctx context.Context) (string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM watchlist_blob WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteBackend Load failed", "error", err)
		return "", fmt.Errorf("failed to load watchlist blob: %w", err)
	}
	return data, nil
}

// Save replaces the stored blob.
func (s *SQLiteBackend) Save(ctx context.Context, data string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist_blob (id, data, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`, data)
	if err != nil {
		slog.Error("SQLiteBackend Save failed", "error", err)
		return fmt.Errorf("failed to save watchlist blob: %w", err)
	}
	slog.Debug("SQLiteBackend Save succeeded", "bytes", len(data))
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
