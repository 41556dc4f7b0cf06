package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/history"
)

// New opens the backend selected by cfg.Backend.
func New(cfg *config.HistoryConfig) (history.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite", "":
		if cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
				return nil, history.NewStorageError("sqlite", "open", err)
			}
		}
		return NewSQLiteStorage(&SQLiteConfig{
			Path:        cfg.SQLite.Path,
			Driver:      cfg.SQLite.Driver,
			WALMode:     cfg.SQLite.WALMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
