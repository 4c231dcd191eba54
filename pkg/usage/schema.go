package usage

// SchemaVersion is the current usage schema version.
const SchemaVersion = 1

// Timestamps are stored as Unix nanoseconds so both backends can bucket by
// day with integer division.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id               TEXT PRIMARY KEY,
    service          TEXT NOT NULL,
    operation_type   TEXT NOT NULL,
    tokens_used      INTEGER NOT NULL,
    cost             REAL NOT NULL,
    response_time_us INTEGER NOT NULL,
    user_id          TEXT,
    ts_ns            INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_records_service_ts ON usage_records(service, ts_ns);
CREATE INDEX IF NOT EXISTS idx_usage_records_ts ON usage_records(ts_ns);

CREATE TABLE IF NOT EXISTS usage_schema_version (
    version INTEGER PRIMARY KEY
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id               TEXT PRIMARY KEY,
    service          TEXT NOT NULL,
    operation_type   TEXT NOT NULL,
    tokens_used      BIGINT NOT NULL,
    cost             DOUBLE PRECISION NOT NULL,
    response_time_us BIGINT NOT NULL,
    user_id          TEXT,
    ts_ns            BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_records_service_ts ON usage_records(service, ts_ns);
CREATE INDEX IF NOT EXISTS idx_usage_records_ts ON usage_records(ts_ns);

CREATE TABLE IF NOT EXISTS usage_schema_version (
    version INTEGER PRIMARY KEY
);
`

const (
	sqliteInsertVersion = `INSERT OR IGNORE INTO usage_schema_version (version) VALUES (?)`
	sqliteMaxVersion    = `SELECT COALESCE(MAX(version), 0) FROM usage_schema_version`

	sqliteInsert = `
INSERT INTO usage_records (id, service, operation_type, tokens_used, cost, response_time_us, user_id, ts_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteTotals = `
SELECT COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost), 0.0), COALESCE(AVG(response_time_us), 0.0)
FROM usage_records
WHERE service = ? AND ts_ns >= ? AND ts_ns <= ?`

	sqliteByOperation = `
SELECT operation_type, COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost), 0.0)
FROM usage_records
WHERE service = ? AND ts_ns >= ? AND ts_ns <= ?
GROUP BY operation_type
ORDER BY 4 DESC, operation_type`

	sqliteDaily = `
SELECT ts_ns / 86400000000000 AS day, COALESCE(SUM(cost), 0.0)
FROM usage_records
WHERE service = ? AND ts_ns >= ? AND ts_ns <= ?
GROUP BY day
ORDER BY day`

	sqlitePrune = `DELETE FROM usage_records WHERE ts_ns < ?`
)

const (
	postgresInsertVersion = `INSERT INTO usage_schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING`
	postgresMaxVersion    = `SELECT COALESCE(MAX(version), 0) FROM usage_schema_version`

	postgresInsert = `
INSERT INTO usage_records (id, service, operation_type, tokens_used, cost, response_time_us, user_id, ts_ns)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	postgresTotals = `
SELECT COUNT(*),
       COALESCE(SUM(tokens_used), 0)::BIGINT,
       COALESCE(SUM(cost), 0)::DOUBLE PRECISION,
       COALESCE(AVG(response_time_us), 0)::DOUBLE PRECISION
FROM usage_records
WHERE service = $1 AND ts_ns >= $2 AND ts_ns <= $3`

	postgresByOperation = `
SELECT operation_type,
       COUNT(*),
       COALESCE(SUM(tokens_used), 0)::BIGINT,
       COALESCE(SUM(cost), 0)::DOUBLE PRECISION AS total_cost
FROM usage_records
WHERE service = $1 AND ts_ns >= $2 AND ts_ns <= $3
GROUP BY operation_type
ORDER BY total_cost DESC, operation_type`

	postgresDaily = `
SELECT ts_ns / 86400000000000 AS day, COALESCE(SUM(cost), 0)::DOUBLE PRECISION
FROM usage_records
WHERE service = $1 AND ts_ns >= $2 AND ts_ns <= $3
GROUP BY day
ORDER BY day`

	postgresPrune = `DELETE FROM usage_records WHERE ts_ns < $1`
)

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
