package watchlist

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Opts holds configuration options for persistence backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a persistence backend.
type Option func(*Opts)

// WithDSN sets the database connection string for the backend.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" so callers can
// pick the matching backend without a separate driver flag.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// NewBackend builds the backend matching the DSN type. An empty DSN yields an
// in-memory backend, which does not survive restarts.
func NewBackend(dsn string) (Backend, error) {
	if dsn == "" {
		slog.Debug("No watchlist DSN provided, using in-memory backend")
		return NewMemoryBackend(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		slog.Debug("Watchlist backend auto-detected PostgreSQL", "dsn_set", true)
		return NewPostgresBackend(WithDSN(dsn))
	}
	slog.Debug("Watchlist backend auto-detected SQLite", "path", dsn)
	return NewSQLiteBackend(WithDSN(dsn))
}

// MemoryBackend is a volatile Backend used in tests and when no DSN is
// configured.
type MemoryBackend struct {
	mu   sync.Mutex
	data string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the stored blob.
func (m *MemoryBackend) Load(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

// Save replaces the stored blob.
func (m *MemoryBackend) Save(ctx context.Context, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}
