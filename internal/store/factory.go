package store

import (
	"fmt"
	"strings"
)

// Config holds configuration for the storage backend
type Config struct {
	Type string // "sqlite" or "postgres"
	DSN  string // File path for SQLite, DSN for Postgres
}

// New creates a Store instance based on the provided configuration
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres connection string is required")
		}
		return NewPostgresStore(cfg.DSN)
	case "sqlite", "sqlite3", "":
		if cfg.DSN == "" {
			cfg.DSN = "tn3270d.db"
		}
		return NewSQLiteStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
