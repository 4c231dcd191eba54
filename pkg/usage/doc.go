// Package usage stores per-call usage history and answers the aggregate
// queries behind usage statistics and cost recommendations.
//
// The request-handling layer appends a Record after every metered call.
// Analytics read it back through the HistoryStore interface:
//
//	store, err := usage.NewSQLiteStore(usage.SQLiteConfig{Path: "data/usage.db"})
//	...
//	store.Store(ctx, usage.NewRecord("openai", "analysis", 742, 0.012, 1300*time.Millisecond))
//	totals, err := store.Totals(ctx, usage.Query{Service: "openai", Since: time.Now().Add(-time.Hour)})
//
// # Backends
//
//   - MemoryStore: for tests and single-process runs
//   - SQLiteStore: pure-Go ("sqlite") or cgo ("sqlite3") driver
//   - PostgresStore: pgx connection pool
//
// InstrumentedStore wraps any backend with OpenTelemetry spans and
// metrics. RetentionScheduler prunes old records on a cron schedule.
package usage
