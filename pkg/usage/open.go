package usage

import (
	"context"
	"fmt"

	"github.com/fortinpy85/jddb-sub001/pkg/config"
)

// Open builds the configured backend wrapped in an InstrumentedStore.
func Open(ctx context.Context, cfg config.HistoryConfig) (HistoryStore, error) {
	var (
		store HistoryStore
		err   error
	)
	switch cfg.Backend {
	case "memory":
		store = NewMemoryStore()
	case "sqlite":
		store, err = NewSQLiteStore(SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			JournalMode:  cfg.SQLite.JournalMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
		})
	case "postgres":
		store, err = NewPostgresStore(ctx, PostgresConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	instrumented, err := NewInstrumentedStore(store, cfg.Backend)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to instrument history store: %w", err)
	}
	return instrumented, nil
}
