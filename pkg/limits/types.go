package limits

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Dimension is one axis along which a service's usage is limited.
type Dimension string

const (
	// RequestsPerMinute counts calls.
	RequestsPerMinute Dimension = "requests_per_minute"

	// TokensPerMinute counts model tokens.
	TokensPerMinute Dimension = "tokens_per_minute"

	// CostPerHour counts spend in cents.
	CostPerHour Dimension = "cost_per_hour"

	// CostPerDay counts spend in cents.
	CostPerDay Dimension = "cost_per_day"
)

// Dimensions lists every dimension in evaluation order.
var Dimensions = []Dimension{RequestsPerMinute, TokensPerMinute, CostPerHour, CostPerDay}

// ParseDimension converts a config or URL string to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	for _, d := range Dimensions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// DefaultBurstAllowance is applied when a RateLimit leaves BurstAllowance unset.
const DefaultBurstAllowance = 1.2

// RateLimit is the configured limit for one (service, dimension) pair.
//
// Cost thresholds are in cents.
type RateLimit struct {
	Threshold      int     `json:"threshold" yaml:"threshold"`
	WindowSeconds  int     `json:"window_seconds" yaml:"window_seconds"`
	BurstAllowance float64 `json:"burst_allowance" yaml:"burst_allowance"`
}

// WithDefaults returns a copy with BurstAllowance defaulted.
func (r RateLimit) WithDefaults() RateLimit {
	if r.BurstAllowance == 0 {
		r.BurstAllowance = DefaultBurstAllowance
	}
	return r
}

// Validate reports whether the limit can back a bucket and a window.
func (r RateLimit) Validate() error {
	switch {
	case r.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidRateLimit, r.Threshold)
	case r.WindowSeconds <= 0:
		return fmt.Errorf("%w: window_seconds must be positive, got %d", ErrInvalidRateLimit, r.WindowSeconds)
	case r.BurstAllowance < 1.0 || math.IsNaN(r.BurstAllowance) || math.IsInf(r.BurstAllowance, 0):
		return fmt.Errorf("%w: burst_allowance must be >= 1.0, got %v", ErrInvalidRateLimit, r.BurstAllowance)
	}
	return nil
}

// Window returns the window length.
func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Capacity is Threshold * BurstAllowance.
func (r RateLimit) Capacity() float64 {
	return float64(r.Threshold) * r.BurstAllowance
}

// RefillRate is Threshold / WindowSeconds, in credits per second.
func (r RateLimit) RefillRate() float64 {
	return float64(r.Threshold) / float64(r.WindowSeconds)
}

// RateLimitStatus is the outcome of checking one dimension.
type RateLimitStatus struct {
	Dimension Dimension `json:"limit_type"`

	// CurrentUsage is the windowed total observed before this request.
	CurrentUsage int64 `json:"current_usage"`

	// Limit is the configured threshold.
	Limit int64 `json:"limit"`

	// WindowRemaining is the window length the reset time is measured with.
	WindowRemaining time.Duration `json:"window_remaining"`

	// ResetTime is now + window.
	ResetTime time.Time `json:"reset_time"`

	IsExceeded bool `json:"is_exceeded"`
}

// Decision is the three-valued outcome of an admission check.
type Decision int

const (
	// DecisionAllowed means every configured dimension admitted the request.
	DecisionAllowed Decision = iota

	// DecisionDenied means at least one dimension was exceeded.
	DecisionDenied

	// DecisionIndeterminate means the check could not be evaluated.
	DecisionIndeterminate
)

// String returns the lowercase decision name used in logs and metrics.
func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionDenied:
		return "denied"
	case DecisionIndeterminate:
		return "indeterminate"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Permits reports whether the caller should proceed. Indeterminate
// permits.
func (d Decision) Permits() bool {
	return d != DecisionDenied
}

// CheckRequest describes a call about to be made.
type CheckRequest struct {
	Service       string
	OperationType string

	// EstimatedTokens defaults to 1 when zero unless HasTokens is set.
	EstimatedTokens int64

	// HasTokens marks EstimatedTokens as given, so zero is counted as zero.
	HasTokens bool

	// EstimatedCost is in dollars.
	EstimatedCost float64

	UserID string
}

// CheckResult is returned by Service.CheckRateLimit.
type CheckResult struct {
	Decision Decision

	// Allowed is Decision.Permits().
	Allowed bool

	// Statuses holds one entry per evaluated dimension. It is empty for
	// unconfigured services and indeterminate results.
	Statuses []RateLimitStatus

	// Err is the internal failure behind an indeterminate decision.
	Err error
}

// Exceeded returns the statuses that caused a denial.
func (r CheckResult) Exceeded() []RateLimitStatus {
	var out []RateLimitStatus
	for _, s := range r.Statuses {
		if s.IsExceeded {
			out = append(out, s)
		}
	}
	return out
}

// UsageEvent is actual consumption reported after a call.
type UsageEvent struct {
	Service       string
	OperationType string

	// TokensUsed defaults to 1 when zero unless HasTokens is set.
	TokensUsed int64

	// HasTokens marks TokensUsed as given, so zero is counted as zero.
	HasTokens bool

	// Cost is in dollars.
	Cost float64

	UserID string

	// Timestamp defaults to the service clock when zero.
	Timestamp time.Time
}

// MaxCost is the largest per-call cost in dollars that checks and records
// accept. Cent amounts and window sums stay far inside int64 below it.
const MaxCost = 1e12

// ValidCost reports whether cost is a finite dollar amount in [0, MaxCost].
// NaN fails both comparisons.
func ValidCost(cost float64) bool {
	return cost >= 0 && cost <= MaxCost
}

// CostCents converts dollars to integer cents, rounding half to even.
// Costs outside ValidCost saturate to 0 or MaxCost.
func CostCents(cost float64) int64 {
	switch {
	case math.IsNaN(cost) || cost < 0:
		return 0
	case cost > MaxCost:
		cost = MaxCost
	}
	return int64(math.RoundToEven(cost * 100))
}

// tokenCount applies the default of one token to an unset zero.
func tokenCount(n int64, explicit bool) int64 {
	if n == 0 && !explicit {
		return 1
	}
	return n
}

var (
	// ErrInvalidRateLimit is returned when a RateLimit fails validation.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidUsage is returned for negative token counts and for costs
	// outside ValidCost.
	ErrInvalidUsage = errors.New("invalid usage amount")

	// ErrUnknownService is returned by lookups for a service with no limits.
	ErrUnknownService = errors.New("service not configured")
)

// LimitError records which service and dimension a failure belongs to.
type LimitError struct {
	Service   string
	Dimension Dimension
	Err       error
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	if e.Dimension == "" {
		return fmt.Sprintf("limits: service %s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("limits: service %s, %s: %v", e.Service, e.Dimension, e.Err)
}

// Unwrap returns the underlying error.
func (e *LimitError) Unwrap() error {
	return e.Err
}
