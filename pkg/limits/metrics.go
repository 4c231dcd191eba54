package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for the rate limiting service.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	checks          *prometheus.CounterVec
	exceeded        *prometheus.CounterVec
	usageRecorded   *prometheus.CounterVec
	bucketUtil      *prometheus.GaugeVec
	windowUsage     *prometheus.GaugeVec
	recommendedWait *prometheus.HistogramVec
	configUpdates   *prometheus.CounterVec
	checkDuration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jddb_limits_checks_total",
				Help: "Total number of admission checks by decision",
			},
			[]string{"service", "decision"},
		),

		exceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jddb_limits_exceeded_total",
				Help: "Total number of dimension checks that reported an exceeded limit",
			},
			[]string{"service", "dimension"},
		),

		usageRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jddb_limits_usage_recorded_total",
				Help: "Amounts recorded into usage windows (requests, tokens or cents)",
			},
			[]string{"service", "dimension"},
		),

		bucketUtil: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jddb_limits_bucket_utilization_ratio",
				Help: "Token bucket utilization after the last check (0.0-1.0)",
			},
			[]string{"service", "dimension"},
		),

		windowUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jddb_limits_window_usage",
				Help: "Windowed usage observed at the last check",
			},
			[]string{"service", "dimension"},
		),

		recommendedWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jddb_limits_recommended_delay_seconds",
				Help:    "Recommended delays handed out to callers",
				Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"service"},
		),

		configUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jddb_limits_config_updates_total",
				Help: "Rate limit updates by result",
			},
			[]string{"service", "result"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jddb_limits_check_duration_seconds",
				Help:    "Duration of admission checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"service"},
		),
	}
}

// RecordCheck records the decision of one admission check.
func (m *Metrics) RecordCheck(service string, d Decision, duration time.Duration) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(service, d.String()).Inc()
	m.checkDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordStatus records the per-dimension state seen by a check.
func (m *Metrics) RecordStatus(service string, st RateLimitStatus, utilization float64) {
	if m == nil {
		return
	}
	dim := string(st.Dimension)
	if st.IsExceeded {
		m.exceeded.WithLabelValues(service, dim).Inc()
	}
	m.bucketUtil.WithLabelValues(service, dim).Set(utilization)
	m.windowUsage.WithLabelValues(service, dim).Set(float64(st.CurrentUsage))
}

// RecordUsage records an amount added to a window.
func (m *Metrics) RecordUsage(service string, dim Dimension, amount int64) {
	if m == nil {
		return
	}
	m.usageRecorded.WithLabelValues(service, string(dim)).Add(float64(amount))
}

// RecordDelay records a recommended delay.
func (m *Metrics) RecordDelay(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.recommendedWait.WithLabelValues(service).Observe(d.Seconds())
}

// RecordConfigUpdate records the result of UpdateRateLimits.
func (m *Metrics) RecordConfigUpdate(service string, ok bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !ok {
		result = "rejected"
	}
	m.configUpdates.WithLabelValues(service, result).Inc()
}
