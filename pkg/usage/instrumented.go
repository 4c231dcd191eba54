package usage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fortinpy85/jddb-sub001/pkg/usage"

// InstrumentedStore wraps a HistoryStore with OpenTelemetry spans, a
// latency histogram and an error counter. It uses the global tracer and
// meter providers.
type InstrumentedStore struct {
	inner    HistoryStore
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStore wraps inner. backend labels spans and metrics.
func NewInstrumentedStore(inner HistoryStore, backend string) (*InstrumentedStore, error) {
	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"usage.store.operation.duration",
		metric.WithDescription("Duration of usage history store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"usage.store.operation.errors",
		metric.WithDescription("Number of usage history store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		backend:  backend,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "usage.store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("db.system", s.backend),
			attribute.String("usage.store.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStore) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("backend", s.backend),
		attribute.String("operation", operation),
	)
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func queryAttrs(q Query) []attribute.KeyValue {
	since, until := q.Bounds()
	return []attribute.KeyValue{
		attribute.String("usage.service", q.Service),
		attribute.String("usage.since", since.UTC().Format(time.RFC3339)),
		attribute.String("usage.until", until.UTC().Format(time.RFC3339)),
	}
}

// Store implements HistoryStore.
func (s *InstrumentedStore) Store(ctx context.Context, rec *Record) error {
	ctx, span := s.startSpan(ctx, "store", attribute.String("usage.service", rec.Service))
	start := time.Now()
	err := s.inner.Store(ctx, rec)
	s.finish(ctx, span, "store", start, err)
	return err
}

// Totals implements HistoryStore.
func (s *InstrumentedStore) Totals(ctx context.Context, q Query) (*Totals, error) {
	ctx, span := s.startSpan(ctx, "totals", queryAttrs(q)...)
	start := time.Now()
	t, err := s.inner.Totals(ctx, q)
	if err == nil {
		span.SetAttributes(attribute.Int64("usage.requests", t.Requests))
	}
	s.finish(ctx, span, "totals", start, err)
	return t, err
}

// TotalsByOperation implements HistoryStore.
func (s *InstrumentedStore) TotalsByOperation(ctx context.Context, q Query) ([]OperationTotals, error) {
	ctx, span := s.startSpan(ctx, "totals_by_operation", queryAttrs(q)...)
	start := time.Now()
	out, err := s.inner.TotalsByOperation(ctx, q)
	s.finish(ctx, span, "totals_by_operation", start, err)
	return out, err
}

// DailyCosts implements HistoryStore.
func (s *InstrumentedStore) DailyCosts(ctx context.Context, q Query) ([]DailyCost, error) {
	ctx, span := s.startSpan(ctx, "daily_costs", queryAttrs(q)...)
	start := time.Now()
	out, err := s.inner.DailyCosts(ctx, q)
	s.finish(ctx, span, "daily_costs", start, err)
	return out, err
}

// Prune implements HistoryStore.
func (s *InstrumentedStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, span := s.startSpan(ctx, "prune", attribute.String("usage.older_than", olderThan.UTC().Format(time.RFC3339)))
	start := time.Now()
	n, err := s.inner.Prune(ctx, olderThan)
	span.SetAttributes(attribute.Int64("usage.deleted", n))
	s.finish(ctx, span, "prune", start, err)
	return n, err
}

// Ping implements HistoryStore.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.finish(ctx, span, "ping", start, err)
	return err
}

// Close implements HistoryStore.
func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
