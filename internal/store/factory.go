package store

import (
	"fmt"
	"strings"
)

// Config selects and configures a storage backend.
type Config struct {
	// Backend is "sqlite" (default) or "postgres".
	Backend string
	// DSN is the sqlite file path or postgres connection string.
	DSN string
}

// New constructs a Store from Config.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres backend requires a dsn")
		}
		return NewPostgresStore(cfg.DSN)
	case "", "sqlite", "sqlite3":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "issuebot.db"
		}
		return NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
}
