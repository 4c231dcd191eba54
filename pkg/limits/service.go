package limits

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fortinpy85/jddb-sub001/pkg/limits/ratelimit"
)

// MaxRecommendedDelay caps RecommendedDelay.
const MaxRecommendedDelay = 60 * time.Second

// WindowFactory builds the usage window for a (service, dimension) pair.
type WindowFactory func(service string, dim Dimension, window time.Duration) ratelimit.Counter

// Service is the rate limiting and usage governance engine.
//
// One Service is created at process start and passed to every call site
// that needs it. For each configured (service, dimension) pair it keeps a
// token bucket for burst control and a sliding window for the quota.
//
// # Example
//
//	svc, err := limits.NewService(map[string]map[limits.Dimension]limits.RateLimit{
//	    "openai": {
//	        limits.RequestsPerMinute: {Threshold: 60, WindowSeconds: 60},
//	    },
//	}, limits.WithLogger(logger))
//
//	res := svc.CheckRateLimit(ctx, limits.CheckRequest{Service: "openai", EstimatedTokens: 800})
//	if !res.Allowed {
//	    wait := svc.RecommendedDelay("openai", "analysis")
//	    ...
//	}
//	svc.RecordUsage(ctx, limits.UsageEvent{Service: "openai", TokensUsed: 742, Cost: 0.012})
//
// # Concurrency
//
// Buckets and windows carry their own locks. The service map is only read
// locked long enough to copy the per-dimension state, so checks on
// unrelated pairs never contend. Dimensions of one check are evaluated in
// order without a transaction unless atomic checks are enabled.
type Service struct {
	mu       sync.RWMutex
	services map[string]*serviceState

	clock     ratelimit.Clock
	logger    *slog.Logger
	metrics   *Metrics
	newWindow WindowFactory
	atomic    bool

	// throttles the unknown-service warning
	warnLimiter *rate.Limiter
}

type serviceState struct {
	// held for a whole check in atomic mode
	checkMu sync.Mutex

	// guarded by Service.mu; entries are immutable once published
	dims map[Dimension]*dimensionState
}

type dimensionState struct {
	dim    Dimension
	limit  RateLimit
	bucket *ratelimit.TokenBucket
	window ratelimit.Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source. Defaults to ratelimit.SystemClock.
func WithClock(c ratelimit.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithWindowFactory replaces the in-memory sliding windows, for example
// with ratelimit.RedisWindow.
func WithWindowFactory(f WindowFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.newWindow = f
		}
	}
}

// WithAtomicChecks makes every check all-or-nothing: a per-service lock is
// held for the whole check and credits consumed by a denied check are
// refunded.
func WithAtomicChecks(enabled bool) Option {
	return func(s *Service) { s.atomic = enabled }
}

// NewService validates limits and builds a bucket and a window for every
// configured pair.
func NewService(limits map[string]map[Dimension]RateLimit, opts ...Option) (*Service, error) {
	s := &Service{
		services:    make(map[string]*serviceState, len(limits)),
		clock:       ratelimit.SystemClock{},
		logger:      slog.Default(),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "limits")
	if s.newWindow == nil {
		s.newWindow = func(_ string, _ Dimension, window time.Duration) ratelimit.Counter {
			return ratelimit.NewSlidingWindow(window, s.clock)
		}
	}

	for service, dims := range limits {
		built, err := s.buildDimensions(service, dims, nil)
		if err != nil {
			return nil, err
		}
		s.services[service] = &serviceState{dims: built}
	}

	s.logger.Info("rate limiting service initialized",
		"services", len(s.services),
		"atomic_checks", s.atomic,
	)
	return s, nil
}

// buildDimensions validates dims and creates fresh buckets. Windows from
// existing are reused; missing ones are created.
func (s *Service) buildDimensions(service string, dims map[Dimension]RateLimit, existing map[Dimension]*dimensionState) (map[Dimension]*dimensionState, error) {
	out := make(map[Dimension]*dimensionState, len(existing)+len(dims))
	for dim, st := range existing {
		out[dim] = st
	}

	for dim, limit := range dims {
		if _, err := ParseDimension(string(dim)); err != nil {
			return nil, &LimitError{Service: service, Dimension: dim, Err: fmt.Errorf("%w: %v", ErrInvalidRateLimit, err)}
		}
		limit = limit.WithDefaults()
		if err := limit.Validate(); err != nil {
			return nil, &LimitError{Service: service, Dimension: dim, Err: err}
		}

		st := &dimensionState{
			dim:    dim,
			limit:  limit,
			bucket: ratelimit.NewTokenBucket(limit.Capacity(), limit.RefillRate(), s.clock),
		}
		if prev, ok := existing[dim]; ok {
			st.window = prev.window
			if prev.window.Window() != limit.Window() {
				s.logger.Warn("window length changed but usage window keeps its original length",
					"service", service,
					"dimension", dim,
					"window", prev.window.Window(),
					"configured_window", limit.Window(),
				)
			}
		} else {
			st.window = s.newWindow(service, dim, limit.Window())
		}
		out[dim] = st
	}
	return out, nil
}

// lookup returns the service state and its dimensions in evaluation order.
func (s *Service) lookup(service string) (*serviceState, []*dimensionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.services[service]
	if !ok {
		return nil, nil, false
	}
	ordered := make([]*dimensionState, 0, len(st.dims))
	for _, dim := range Dimensions {
		if d, ok := st.dims[dim]; ok {
			ordered = append(ordered, d)
		}
	}
	return st, ordered, true
}

// CheckRateLimit decides whether a call may proceed.
//
// Every configured dimension consumes its amount from its bucket, even when
// another dimension goes on to deny the call. A dimension is exceeded when
// its bucket could not supply the amount or when the windowed usage plus
// the amount is above the threshold.
//
// Unconfigured services are allowed with no statuses. Internal failures
// produce DecisionIndeterminate, which Allowed maps to true.
func (s *Service) CheckRateLimit(ctx context.Context, req CheckRequest) (res CheckResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = s.indeterminate(req, fmt.Errorf("panic during check: %v", r))
		}
		s.metrics.RecordCheck(req.Service, res.Decision, time.Since(start))
	}()

	state, dims, ok := s.lookup(req.Service)
	if !ok {
		if s.warnLimiter.Allow() {
			s.logger.Warn("no rate limits configured for service", "service", req.Service)
		}
		return CheckResult{Decision: DecisionAllowed, Allowed: true}
	}

	if s.atomic {
		state.checkMu.Lock()
		defer state.checkMu.Unlock()
	}

	decision, statuses, err := s.evaluate(ctx, req, dims)
	if err != nil {
		return s.indeterminate(req, err)
	}
	if decision == DecisionDenied {
		s.logger.Debug("rate limit exceeded",
			"service", req.Service,
			"operation", req.OperationType,
			"user_id", req.UserID,
		)
	}
	return CheckResult{Decision: decision, Allowed: decision.Permits(), Statuses: statuses}
}

func (s *Service) evaluate(ctx context.Context, req CheckRequest, dims []*dimensionState) (Decision, []RateLimitStatus, error) {
	tokens := tokenCount(req.EstimatedTokens, req.HasTokens)
	if tokens < 0 || !ValidCost(req.EstimatedCost) {
		return DecisionIndeterminate, nil, &LimitError{
			Service: req.Service,
			Err:     fmt.Errorf("%w: tokens=%d cost=%v", ErrInvalidUsage, tokens, req.EstimatedCost),
		}
	}
	cents := CostCents(req.EstimatedCost)

	now := s.clock.Now()
	statuses := make([]RateLimitStatus, 0, len(dims))
	consumed := make([]*dimensionState, 0, len(dims))
	amounts := make([]int64, 0, len(dims))
	decision := DecisionAllowed

	refund := func() {
		for i, d := range consumed {
			d.bucket.Refund(float64(amounts[i]))
		}
	}

	for _, d := range dims {
		amount := amountFor(d.dim, tokens, cents)

		ok := d.bucket.Consume(float64(amount))
		if ok {
			consumed = append(consumed, d)
			amounts = append(amounts, amount)
		}

		current, err := d.window.Total(ctx)
		if err != nil {
			if s.atomic {
				refund()
			}
			return DecisionIndeterminate, nil, &LimitError{Service: req.Service, Dimension: d.dim, Err: err}
		}

		exceeded := !ok || current+amount > int64(d.limit.Threshold)
		if exceeded {
			decision = DecisionDenied
		}

		st := RateLimitStatus{
			Dimension:       d.dim,
			CurrentUsage:    current,
			Limit:           int64(d.limit.Threshold),
			WindowRemaining: d.limit.Window(),
			ResetTime:       now.Add(d.limit.Window()),
			IsExceeded:      exceeded,
		}
		statuses = append(statuses, st)
		if s.metrics != nil {
			s.metrics.RecordStatus(req.Service, st, d.bucket.Status().Utilization)
		}
	}

	if decision == DecisionDenied && s.atomic {
		refund()
	}
	return decision, statuses, nil
}

func (s *Service) indeterminate(req CheckRequest, err error) CheckResult {
	s.logger.Warn("rate limit check failed, allowing request",
		"service", req.Service,
		"operation", req.OperationType,
		"error", err,
	)
	d := DecisionIndeterminate
	return CheckResult{Decision: d, Allowed: d.Permits(), Err: err}
}

func amountFor(dim Dimension, tokens, cents int64) int64 {
	switch dim {
	case RequestsPerMinute:
		return 1
	case TokensPerMinute:
		return tokens
	default:
		return cents
	}
}

// RecordUsage adds actual consumption to every window of the service.
//
// All windows share one timestamp. Unconfigured services are ignored.
// Failures are logged and never returned.
func (s *Service) RecordUsage(ctx context.Context, ev UsageEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recording usage panicked", "service", ev.Service, "panic", r)
		}
	}()

	_, dims, ok := s.lookup(ev.Service)
	if !ok {
		return
	}

	tokens := tokenCount(ev.TokensUsed, ev.HasTokens)
	if tokens < 0 || !ValidCost(ev.Cost) {
		s.logger.Warn("ignoring invalid usage",
			"service", ev.Service,
			"tokens", tokens,
			"cost", ev.Cost,
		)
		return
	}
	cents := CostCents(ev.Cost)

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	for _, d := range dims {
		amount := amountFor(d.dim, tokens, cents)
		if err := d.window.Record(ctx, amount, ts); err != nil {
			s.logger.Error("failed to record usage",
				"service", ev.Service,
				"dimension", d.dim,
				"error", err,
			)
			continue
		}
		s.metrics.RecordUsage(ev.Service, d.dim, amount)
	}
}

// RecommendedDelay returns how long a caller should wait before retrying.
//
// It is the longest time any depleted bucket needs to earn one credit,
// capped at MaxRecommendedDelay, and zero when no bucket is below one
// credit or the service is unconfigured.
func (s *Service) RecommendedDelay(service, operationType string) time.Duration {
	_, dims, ok := s.lookup(service)
	if !ok {
		return 0
	}

	var seconds float64
	for _, d := range dims {
		st := d.bucket.Status()
		if st.CurrentTokens >= 1 || st.FillRate <= 0 {
			continue
		}
		if wait := (1 - st.CurrentTokens) / st.FillRate; wait > seconds {
			seconds = wait
		}
	}

	// Rounded up so a fractional wait never reports as zero.
	delay := time.Duration(math.Ceil(seconds * float64(time.Second)))
	if delay > MaxRecommendedDelay {
		delay = MaxRecommendedDelay
	}
	if delay > 0 {
		s.metrics.RecordDelay(service, delay)
		s.logger.Debug("recommending delay", "service", service, "operation", operationType, "delay", delay)
	}
	return delay
}

// UpdateRateLimits replaces the limits of the given dimensions.
//
// Each named dimension gets a new full bucket built from the new limit. Its
// usage window is kept, including its original length. Dimensions not
// named are untouched; new dimensions and new services are created. Every
// entry is validated before anything is applied.
func (s *Service) UpdateRateLimits(service string, limits map[Dimension]RateLimit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &LimitError{Service: service, Err: fmt.Errorf("panic during update: %v", r)}
		}
		s.metrics.RecordConfigUpdate(service, err == nil)
		if err != nil {
			s.logger.Error("rate limit update rejected", "service", service, "error", err)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.services[service]
	var existing map[Dimension]*dimensionState
	if ok {
		existing = state.dims
	}

	built, err := s.buildDimensions(service, limits, existing)
	if err != nil {
		return err
	}

	if ok {
		state.dims = built
	} else {
		s.services[service] = &serviceState{dims: built}
	}

	s.logger.Info("rate limits updated", "service", service, "dimensions", len(limits))
	return nil
}

// DimensionReport is a read-only view of one dimension.
type DimensionReport struct {
	Limit       RateLimit              `json:"limit"`
	Bucket      ratelimit.BucketStatus `json:"bucket"`
	WindowUsage int64                  `json:"window_usage"`
}

// Utilization is WindowUsage / Threshold.
func (r DimensionReport) Utilization() float64 {
	if r.Limit.Threshold <= 0 {
		return 0
	}
	return float64(r.WindowUsage) / float64(r.Limit.Threshold)
}

// Report returns the current state of every dimension of service without
// consuming anything.
func (s *Service) Report(ctx context.Context, service string) (map[Dimension]DimensionReport, error) {
	_, dims, ok := s.lookup(service)
	if !ok {
		return nil, &LimitError{Service: service, Err: ErrUnknownService}
	}

	out := make(map[Dimension]DimensionReport, len(dims))
	for _, d := range dims {
		usage, err := d.window.Total(ctx)
		if err != nil {
			return nil, &LimitError{Service: service, Dimension: d.dim, Err: err}
		}
		out[d.dim] = DimensionReport{
			Limit:       d.limit,
			Bucket:      d.bucket.Status(),
			WindowUsage: usage,
		}
	}
	return out, nil
}

// Snapshot returns statuses like CheckRateLimit without consuming. A
// dimension is reported exceeded once its window has reached the threshold.
func (s *Service) Snapshot(ctx context.Context, service string) ([]RateLimitStatus, error) {
	report, err := s.Report(ctx, service)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]RateLimitStatus, 0, len(report))
	for _, dim := range Dimensions {
		r, ok := report[dim]
		if !ok {
			continue
		}
		out = append(out, RateLimitStatus{
			Dimension:       dim,
			CurrentUsage:    r.WindowUsage,
			Limit:           int64(r.Limit.Threshold),
			WindowRemaining: r.Limit.Window(),
			ResetTime:       now.Add(r.Limit.Window()),
			IsExceeded:      r.WindowUsage >= int64(r.Limit.Threshold),
		})
	}
	return out, nil
}

// Limits returns the configured limits of service.
func (s *Service) Limits(service string) (map[Dimension]RateLimit, bool) {
	_, dims, ok := s.lookup(service)
	if !ok {
		return nil, false
	}
	out := make(map[Dimension]RateLimit, len(dims))
	for _, d := range dims {
		out[d.dim] = d.limit
	}
	return out, true
}

// Services returns the configured service names, sorted.
func (s *Service) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clock returns the service's time source.
func (s *Service) Clock() ratelimit.Clock {
	return s.clock
}
