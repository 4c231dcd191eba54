package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one completed call to a metered service.
type Record struct {
	ID            string        `json:"id"`
	Service       string        `json:"service"`
	OperationType string        `json:"operation_type"`
	TokensUsed    int64         `json:"tokens_used"`
	Cost          float64       `json:"cost"`
	ResponseTime  time.Duration `json:"response_time"`
	UserID        string        `json:"user_id,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewRecord creates a Record with a fresh ID stamped now.
func NewRecord(service, operationType string, tokens int64, cost float64, responseTime time.Duration) *Record {
	return &Record{
		ID:            uuid.NewString(),
		Service:       service,
		OperationType: operationType,
		TokensUsed:    tokens,
		Cost:          cost,
		ResponseTime:  responseTime,
		Timestamp:     time.Now().UTC(),
	}
}

// Validate checks the fields every backend relies on.
func (r *Record) Validate() error {
	switch {
	case r == nil:
		return errors.New("record is nil")
	case r.Service == "":
		return errors.New("service is required")
	case r.Timestamp.IsZero():
		return errors.New("timestamp is required")
	case r.TokensUsed < 0 || r.Cost < 0 || r.ResponseTime < 0:
		return fmt.Errorf("negative usage: tokens=%d cost=%v response_time=%v", r.TokensUsed, r.Cost, r.ResponseTime)
	}
	return nil
}

// Query selects the records of one service within [Since, Until].
// A zero Until means now.
type Query struct {
	Service string
	Since   time.Time
	Until   time.Time
}

// Bounds returns the effective range.
func (q Query) Bounds() (time.Time, time.Time) {
	until := q.Until
	if until.IsZero() {
		until = time.Now()
	}
	return q.Since, until
}

// Totals aggregates a Query.
type Totals struct {
	Requests        int64         `json:"total_requests"`
	Tokens          int64         `json:"total_tokens"`
	Cost            float64       `json:"total_cost"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// OperationTotals aggregates a Query for one operation type.
type OperationTotals struct {
	OperationType string  `json:"operation_type"`
	Requests      int64   `json:"requests"`
	Tokens        int64   `json:"tokens"`
	Cost          float64 `json:"cost"`
}

// AvgTokens is Tokens / Requests.
func (o OperationTotals) AvgTokens() float64 {
	if o.Requests == 0 {
		return 0
	}
	return float64(o.Tokens) / float64(o.Requests)
}

// DailyCost is the spend of one UTC day.
type DailyCost struct {
	Day  time.Time `json:"day"`
	Cost float64   `json:"cost"`
}

// HistoryStore persists usage records and answers aggregate queries.
type HistoryStore interface {
	// Store appends a record.
	Store(ctx context.Context, rec *Record) error

	// Totals aggregates every record matching q.
	Totals(ctx context.Context, q Query) (*Totals, error)

	// TotalsByOperation aggregates q per operation type, highest cost first.
	TotalsByOperation(ctx context.Context, q Query) ([]OperationTotals, error)

	// DailyCosts sums cost per UTC day, oldest first. Days without
	// records are omitted.
	DailyCosts(ctx context.Context, q Query) ([]DailyCost, error)

	// Prune deletes records older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("store closed")

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite", "postgres"
	Operation string // "store", "totals", "prune", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("usage storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

const nanosPerDay = int64(24 * time.Hour)

func dayStart(ns int64) time.Time {
	return time.Unix(0, (ns/nanosPerDay)*nanosPerDay).UTC()
}
