package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in a slice. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Store implements HistoryStore.
func (m *MemoryStore) Store(_ context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return newStorageError("memory", "store", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return newStorageError("memory", "store", ErrClosed)
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *MemoryStore) match(q Query, fn func(r *Record)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	since, until := q.Bounds()
	for i := range m.records {
		r := &m.records[i]
		if r.Service != q.Service || r.Timestamp.Before(since) || r.Timestamp.After(until) {
			continue
		}
		fn(r)
	}
	return nil
}

// Totals implements HistoryStore.
func (m *MemoryStore) Totals(_ context.Context, q Query) (*Totals, error) {
	var (
		t  Totals
		rt time.Duration
	)
	err := m.match(q, func(r *Record) {
		t.Requests++
		t.Tokens += r.TokensUsed
		t.Cost += r.Cost
		rt += r.ResponseTime
	})
	if err != nil {
		return nil, newStorageError("memory", "totals", err)
	}
	if t.Requests > 0 {
		t.AvgResponseTime = rt / time.Duration(t.Requests)
	}
	return &t, nil
}

// TotalsByOperation implements HistoryStore.
func (m *MemoryStore) TotalsByOperation(_ context.Context, q Query) ([]OperationTotals, error) {
	byOp := make(map[string]*OperationTotals)
	err := m.match(q, func(r *Record) {
		o, ok := byOp[r.OperationType]
		if !ok {
			o = &OperationTotals{OperationType: r.OperationType}
			byOp[r.OperationType] = o
		}
		o.Requests++
		o.Tokens += r.TokensUsed
		o.Cost += r.Cost
	})
	if err != nil {
		return nil, newStorageError("memory", "totals_by_operation", err)
	}

	out := make([]OperationTotals, 0, len(byOp))
	for _, o := range byOp {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].OperationType < out[j].OperationType
	})
	return out, nil
}

// DailyCosts implements HistoryStore.
func (m *MemoryStore) DailyCosts(_ context.Context, q Query) ([]DailyCost, error) {
	byDay := make(map[int64]float64)
	err := m.match(q, func(r *Record) {
		byDay[r.Timestamp.UnixNano()/nanosPerDay] += r.Cost
	})
	if err != nil {
		return nil, newStorageError("memory", "daily_costs", err)
	}

	days := make([]int64, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	out := make([]DailyCost, 0, len(days))
	for _, d := range days {
		out = append(out, DailyCost{Day: dayStart(d * nanosPerDay), Cost: byDay[d]})
	}
	return out, nil
}

// Prune implements HistoryStore.
func (m *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, newStorageError("memory", "prune", ErrClosed)
	}

	kept := m.records[:0]
	var deleted int64
	for _, r := range m.records {
		if r.Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

// Ping implements HistoryStore.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return newStorageError("memory", "ping", ErrClosed)
	}
	return nil
}

// Close implements HistoryStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
