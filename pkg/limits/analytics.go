package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

// Recommendation thresholds.
const (
	HighCostShare          = 0.30
	HighTokensPerRequest   = 2000
	CostTrendFactor        = 1.5
	HighUtilization        = 0.8
	recommendationLookback = 7 * 24 * time.Hour
	trendRecentDays        = 3
)

// Recommendation types.
const (
	RecommendHighCostOperation = "high_cost_operation"
	RecommendHighTokenUsage    = "high_token_usage"
	RecommendCostTrendIncrease = "cost_trend_increase"
	RecommendHighUtilization   = "high_rate_limit_utilization"
)

// Priority ranks a Recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// DimensionUsage is the live window usage of one dimension.
type DimensionUsage struct {
	Current     int64   `json:"current"`
	Limit       int64   `json:"limit"`
	Utilization float64 `json:"utilization"`
}

// UsageStats combines persisted history with live window state. When the
// history query fails only Service, PeriodHours and Error are set.
type UsageStats struct {
	Service           string                       `json:"service"`
	PeriodHours       int                          `json:"period_hours"`
	TotalRequests     int64                        `json:"total_requests,omitempty"`
	TotalTokens       int64                        `json:"total_tokens,omitempty"`
	TotalCost         float64                      `json:"total_cost,omitempty"`
	AvgResponseTime   float64                      `json:"avg_response_time,omitempty"`
	CurrentRateLimits map[Dimension]DimensionUsage `json:"current_rate_limits,omitempty"`
	Error             string                       `json:"error,omitempty"`
}

// Recommendation is one cost or capacity finding.
type Recommendation struct {
	Type          string    `json:"type"`
	Priority      Priority  `json:"priority"`
	OperationType string    `json:"operation_type,omitempty"`
	Dimension     Dimension `json:"limit_type,omitempty"`
	Message       string    `json:"message"`
	Value         float64   `json:"value"`
	Suggestion    string    `json:"suggestion"`
}

// UsageStats aggregates store history over the last periodHours and adds the
// current utilization of every configured dimension. AvgResponseTime is in
// seconds.
func (s *Service) UsageStats(ctx context.Context, store usage.HistoryStore, service string, periodHours int) UsageStats {
	now := s.clock.Now()
	q := usage.Query{
		Service: service,
		Since:   now.Add(-time.Duration(periodHours) * time.Hour),
		Until:   now,
	}

	totals, err := store.Totals(ctx, q)
	if err != nil {
		s.logger.Error("failed to query usage history",
			"service", service,
			"period_hours", periodHours,
			"error", err,
		)
		return UsageStats{Service: service, PeriodHours: periodHours, Error: err.Error()}
	}

	stats := UsageStats{
		Service:           service,
		PeriodHours:       periodHours,
		TotalRequests:     totals.Requests,
		TotalTokens:       totals.Tokens,
		TotalCost:         totals.Cost,
		AvgResponseTime:   totals.AvgResponseTime.Seconds(),
		CurrentRateLimits: make(map[Dimension]DimensionUsage),
	}

	report, err := s.Report(ctx, service)
	if err != nil {
		// Unconfigured services simply have no live limits.
		return stats
	}
	for dim, r := range report {
		stats.CurrentRateLimits[dim] = DimensionUsage{
			Current:     r.WindowUsage,
			Limit:       int64(r.Limit.Threshold),
			Utilization: r.Utilization(),
		}
	}
	return stats
}

// CostOptimizationRecommendations inspects the last seven days of history
// and the live windows of service. Failures are logged and yield an empty
// list.
func (s *Service) CostOptimizationRecommendations(ctx context.Context, store usage.HistoryStore, service string) []Recommendation {
	recs, err := s.recommend(ctx, store, service)
	if err != nil {
		s.logger.Error("failed to build cost recommendations", "service", service, "error", err)
		return []Recommendation{}
	}
	return recs
}

func (s *Service) recommend(ctx context.Context, store usage.HistoryStore, service string) ([]Recommendation, error) {
	now := s.clock.Now()
	q := usage.Query{Service: service, Since: now.Add(-recommendationLookback), Until: now}

	ops, err := store.TotalsByOperation(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("operation totals: %w", err)
	}
	recs := operationRecommendations(ops)

	days, err := store.DailyCosts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("daily costs: %w", err)
	}
	if rec, ok := costTrend(days); ok {
		recs = append(recs, rec)
	}

	stats := s.UsageStats(ctx, store, service, 1)
	if stats.Error != "" {
		return nil, fmt.Errorf("usage stats: %s", stats.Error)
	}
	for _, dim := range Dimensions {
		u, ok := stats.CurrentRateLimits[dim]
		if !ok || u.Utilization <= HighUtilization {
			continue
		}
		recs = append(recs, Recommendation{
			Type:       RecommendHighUtilization,
			Priority:   PriorityMedium,
			Dimension:  dim,
			Message:    fmt.Sprintf("%s is at %.0f%% of its limit", dim, u.Utilization*100),
			Value:      u.Utilization,
			Suggestion: "Spread requests over time or raise the limit",
		})
	}
	return recs, nil
}

func operationRecommendations(ops []usage.OperationTotals) []Recommendation {
	var total float64
	for _, o := range ops {
		total += o.Cost
	}

	recs := []Recommendation{}
	for _, o := range ops {
		if total > 0 {
			if share := o.Cost / total; share > HighCostShare {
				recs = append(recs, Recommendation{
					Type:          RecommendHighCostOperation,
					Priority:      PriorityHigh,
					OperationType: o.OperationType,
					Message:       fmt.Sprintf("%s accounts for %.1f%% of costs", o.OperationType, share*100),
					Value:         o.Cost,
					Suggestion:    "Cache results or use a cheaper model for this operation",
				})
			}
		}
		if avg := o.AvgTokens(); avg > HighTokensPerRequest {
			recs = append(recs, Recommendation{
				Type:          RecommendHighTokenUsage,
				Priority:      PriorityMedium,
				OperationType: o.OperationType,
				Message:       fmt.Sprintf("%s averages %.0f tokens per request", o.OperationType, avg),
				Value:         avg,
				Suggestion:    "Shorten prompts or split the input into smaller requests",
			})
		}
	}
	return recs
}

// costTrend compares the mean of the last three days with the mean of the
// days before them.
func costTrend(days []usage.DailyCost) (Recommendation, bool) {
	if len(days) <= trendRecentDays {
		return Recommendation{}, false
	}
	split := len(days) - trendRecentDays
	earlier := meanCost(days[:split])
	recent := meanCost(days[split:])
	if earlier <= 0 || recent <= earlier*CostTrendFactor {
		return Recommendation{}, false
	}

	increase := (recent - earlier) / earlier * 100
	return Recommendation{
		Type:       RecommendCostTrendIncrease,
		Priority:   PriorityHigh,
		Message:    fmt.Sprintf("Daily costs increased by %.1f%% over the last %d days", increase, trendRecentDays),
		Value:      increase,
		Suggestion: "Review recent usage for new or inefficient callers",
	}, true
}

func meanCost(days []usage.DailyCost) float64 {
	if len(days) == 0 {
		return 0
	}
	var sum float64
	for _, d := range days {
		sum += d.Cost
	}
	return sum / float64(len(days))
}
