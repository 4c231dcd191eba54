package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLiteConfig contains configuration for the SQLite history store.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" keeps everything in memory.
	Path string

	// Driver is "sqlite" (modernc.org/sqlite) or "sqlite3" (mattn/go-sqlite3).
	// Default: "sqlite"
	Driver string

	// JournalMode is applied with PRAGMA journal_mode.
	// Default: "WAL"
	JournalMode string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns limits open connections.
	// Default: 10
	MaxOpenConns int
}

func (c *SQLiteConfig) applyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.JournalMode == "" {
		c.JournalMode = "WAL"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.Path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		c.MaxOpenConns = 1
	}
}

// dsn builds a connection string that sets the pragmas on every pooled
// connection; the two drivers spell them differently.
func (c *SQLiteConfig) dsn() string {
	ms := c.BusyTimeout.Milliseconds()
	switch c.Driver {
	case "sqlite3":
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=%s&_synchronous=NORMAL", c.Path, ms, c.JournalMode)
	default:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=synchronous(NORMAL)", c.Path, ms, strings.ToLower(c.JournalMode))
	}
}

// SQLiteStore implements HistoryStore on SQLite.
type SQLiteStore struct {
	db        *sql.DB
	config    SQLiteConfig
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewSQLiteStore opens the database, creating its directory and schema.
func NewSQLiteStore(config SQLiteConfig) (*SQLiteStore, error) {
	config.applyDefaults()
	if config.Path == "" {
		return nil, newStorageError("sqlite", "open", fmt.Errorf("path is required"))
	}

	if config.Path != ":memory:" {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, newStorageError("sqlite", "mkdir", err)
			}
		}
	}

	logger := slog.Default().With("component", "usage.storage.sqlite")

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxOpenConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}
	if err := s.initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite usage store initialized",
		"path", config.Path,
		"driver", config.Driver,
		"journal_mode", config.JournalMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return newStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertVersion, SchemaVersion); err != nil {
		return newStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, sqliteMaxVersion).Scan(&version); err != nil {
		return newStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return newStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store implements HistoryStore.
func (s *SQLiteStore) Store(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return newStorageError("sqlite", "store", err)
	}
	_, err := s.db.ExecContext(ctx, sqliteInsert,
		rec.ID, rec.Service, rec.OperationType,
		rec.TokensUsed, rec.Cost, rec.ResponseTime.Microseconds(),
		nullable(rec.UserID), rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}
	return nil
}

func rangeArgs(q Query) (string, int64, int64) {
	since, until := q.Bounds()
	var from int64
	if !since.IsZero() {
		from = since.UnixNano()
	}
	return q.Service, from, until.UnixNano()
}

// Totals implements HistoryStore.
func (s *SQLiteStore) Totals(ctx context.Context, q Query) (*Totals, error) {
	service, from, to := rangeArgs(q)

	var (
		t     Totals
		avgUs float64
	)
	err := s.db.QueryRowContext(ctx, sqliteTotals, service, from, to).
		Scan(&t.Requests, &t.Tokens, &t.Cost, &avgUs)
	if err != nil {
		return nil, newStorageError("sqlite", "totals", err)
	}
	t.AvgResponseTime = time.Duration(avgUs * float64(time.Microsecond))
	return &t, nil
}

// TotalsByOperation implements HistoryStore.
func (s *SQLiteStore) TotalsByOperation(ctx context.Context, q Query) ([]OperationTotals, error) {
	service, from, to := rangeArgs(q)

	rows, err := s.db.QueryContext(ctx, sqliteByOperation, service, from, to)
	if err != nil {
		return nil, newStorageError("sqlite", "totals_by_operation", err)
	}
	defer rows.Close()

	var out []OperationTotals
	for rows.Next() {
		var o OperationTotals
		if err := rows.Scan(&o.OperationType, &o.Requests, &o.Tokens, &o.Cost); err != nil {
			return nil, newStorageError("sqlite", "totals_by_operation", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "totals_by_operation", err)
	}
	return out, nil
}

// DailyCosts implements HistoryStore.
func (s *SQLiteStore) DailyCosts(ctx context.Context, q Query) ([]DailyCost, error) {
	service, from, to := rangeArgs(q)

	rows, err := s.db.QueryContext(ctx, sqliteDaily, service, from, to)
	if err != nil {
		return nil, newStorageError("sqlite", "daily_costs", err)
	}
	defer rows.Close()

	var out []DailyCost
	for rows.Next() {
		var (
			day  int64
			cost float64
		)
		if err := rows.Scan(&day, &cost); err != nil {
			return nil, newStorageError("sqlite", "daily_costs", err)
		}
		out = append(out, DailyCost{Day: dayStart(day * nanosPerDay), Cost: cost})
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "daily_costs", err)
	}
	return out, nil
}

// Prune implements HistoryStore.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlitePrune, olderThan.UnixNano())
	if err != nil {
		return 0, newStorageError("sqlite", "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorageError("sqlite", "prune", err)
	}
	return n, nil
}

// Ping implements HistoryStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close implements HistoryStore.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
		s.logger.Info("SQLite usage store closed")
	})
	return err
}
