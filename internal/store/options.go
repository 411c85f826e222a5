package store

import (
	"fmt"
	"log/slog"
	"strings"
)

// Database backend names returned by DetectDSNType.
const (
	DSNTypeSQLite   = "sqlite"
	DSNTypePostgres = "postgres"
)

// Opts holds configuration options for stores, such as the database connection string.
type Opts struct {
	DSN string // data source name for database connection
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports whether the DSN points at PostgreSQL or an SQLite file.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DSNTypePostgres
	}
	// key=value connection strings, e.g. "host=localhost dbname=oracle"
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Open returns the backend matching the DSN. An empty DSN yields an in-memory store.
func Open(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		slog.Warn("store.Open: no DSN configured, using in-memory store; profiles will not survive restarts")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DSNTypePostgres:
		s, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}
