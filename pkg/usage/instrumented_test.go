package usage

import (
	"context"
	"testing"
	"time"

	"github.com/fortinpy85/jddb-sub001/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestInstrumentedStore_Spans(t *testing.T) {
	recorder := withRecorder(t)

	store, err := NewInstrumentedStore(NewMemoryStore(), "memory")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Store(ctx, NewRecord("svc", "a", 10, 0.1, time.Millisecond)))
	totals, err := store.Totals(ctx, Query{Service: "svc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Requests)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "usage.store.store", spans[0].Name())
	assert.Equal(t, "usage.store.totals", spans[1].Name())
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestInstrumentedStore_RecordsErrors(t *testing.T) {
	recorder := withRecorder(t)

	inner := NewMemoryStore()
	require.NoError(t, inner.Close())

	store, err := NewInstrumentedStore(inner, "memory")
	require.NoError(t, err)

	err = store.Ping(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.NotEmpty(t, spans[0].Events(), "error event recorded")
}

func TestInstrumentedStore_PassesThrough(t *testing.T) {
	inner := NewMemoryStore()
	store, err := NewInstrumentedStore(inner, "memory")
	require.NoError(t, err)

	ctx := context.Background()
	old := NewRecord("svc", "a", 1, 1, 0)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Store(ctx, old))
	require.NoError(t, store.Store(ctx, NewRecord("svc", "b", 1, 2, 0)))

	ops, err := store.TotalsByOperation(ctx, Query{Service: "svc"})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "b", ops[0].OperationType)

	days, err := store.DailyCosts(ctx, Query{Service: "svc"})
	require.NoError(t, err)
	assert.Len(t, days, 2)

	deleted, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 1, inner.Len())
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), config.HistoryConfig{Backend: "memory"})
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(*InstrumentedStore)
	assert.True(t, ok)

	_, err = Open(context.Background(), config.HistoryConfig{Backend: "cassandra"})
	assert.Error(t, err)
}
