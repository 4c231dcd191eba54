package limits

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

func storeRecord(t *testing.T, store usage.HistoryStore, op string, tokens int64, cost float64, at time.Time) {
	t.Helper()
	rec := usage.NewRecord("svc", op, tokens, cost, 250*time.Millisecond)
	rec.Timestamp = at
	if err := store.Store(context.Background(), rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
}

func findRecommendation(recs []Recommendation, typ string) (Recommendation, bool) {
	for _, r := range recs {
		if r.Type == typ {
			return r, true
		}
	}
	return Recommendation{}, false
}

// ============================================================================
// UsageStats Tests
// ============================================================================

func TestUsageStats_Totals(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{"svc": fullLimits()})
	store := usage.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		at := epoch.Add(-time.Duration(i+1) * time.Second)
		svc.RecordUsage(ctx, UsageEvent{Service: "svc", TokensUsed: 500, Cost: 0.02, Timestamp: at})
		storeRecord(t, store, "analysis", 500, 0.02, at)
	}
	// Outside the hour.
	storeRecord(t, store, "analysis", 500, 0.02, epoch.Add(-2*time.Hour))

	stats := svc.UsageStats(ctx, store, "svc", 1)
	if stats.Error != "" {
		t.Fatalf("Error = %q", stats.Error)
	}
	if stats.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", stats.TotalRequests)
	}
	if stats.TotalTokens != 2500 {
		t.Errorf("TotalTokens = %d, want 2500", stats.TotalTokens)
	}
	if math.Abs(stats.TotalCost-0.10) > 1e-9 {
		t.Errorf("TotalCost = %v, want 0.10", stats.TotalCost)
	}
	if stats.AvgResponseTime != 0.25 {
		t.Errorf("AvgResponseTime = %v, want 0.25", stats.AvgResponseTime)
	}

	rpm := stats.CurrentRateLimits[RequestsPerMinute]
	if rpm.Current != 5 || rpm.Limit != 10 || rpm.Utilization != 0.5 {
		t.Errorf("requests_per_minute = %+v, want 5/10 at 0.5", rpm)
	}
	if got := stats.CurrentRateLimits[CostPerHour].Current; got != 10 {
		t.Errorf("cost_per_hour current = %d, want 10 cents", got)
	}
}

func TestUsageStats_UnknownService(t *testing.T) {
	svc, _ := newTestService(t, nil)

	stats := svc.UsageStats(context.Background(), usage.NewMemoryStore(), "svc", 24)
	if stats.Error != "" {
		t.Fatalf("Error = %q", stats.Error)
	}
	if len(stats.CurrentRateLimits) != 0 {
		t.Errorf("CurrentRateLimits = %v, want empty", stats.CurrentRateLimits)
	}
}

func TestUsageStats_StoreFailure(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{"svc": fullLimits()})
	store := usage.NewMemoryStore()
	store.Close()

	stats := svc.UsageStats(context.Background(), store, "svc", 6)
	if stats.Error == "" {
		t.Fatal("Error is empty, want the store failure")
	}
	if stats.Service != "svc" || stats.PeriodHours != 6 {
		t.Errorf("stats = %+v, want service and period set", stats)
	}
	if stats.CurrentRateLimits != nil || stats.TotalRequests != 0 {
		t.Errorf("stats = %+v, want only service, period and error", stats)
	}
}

// ============================================================================
// CostOptimizationRecommendations Tests
// ============================================================================

func TestRecommendations_OperationFindings(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{"svc": fullLimits()})
	store := usage.NewMemoryStore()

	// summarize: 80% of cost, 3000 tokens per request.
	storeRecord(t, store, "summarize", 3000, 4.0, epoch.Add(-time.Hour))
	storeRecord(t, store, "summarize", 3000, 4.0, epoch.Add(-2*time.Hour))
	// classify: 20% of cost, small prompts.
	storeRecord(t, store, "classify", 100, 2.0, epoch.Add(-time.Hour))

	recs := svc.CostOptimizationRecommendations(context.Background(), store, "svc")

	var highCost, highTokens []Recommendation
	for _, r := range recs {
		switch r.Type {
		case RecommendHighCostOperation:
			highCost = append(highCost, r)
		case RecommendHighTokenUsage:
			highTokens = append(highTokens, r)
		}
	}

	if len(highCost) != 1 || highCost[0].OperationType != "summarize" || highCost[0].Priority != PriorityHigh {
		t.Errorf("high cost findings = %+v, want summarize/high", highCost)
	}
	if len(highTokens) != 1 || highTokens[0].OperationType != "summarize" || highTokens[0].Priority != PriorityMedium {
		t.Errorf("high token findings = %+v, want summarize/medium", highTokens)
	}
	if highTokens[0].Value != 3000 {
		t.Errorf("high token value = %v, want 3000", highTokens[0].Value)
	}
}

func TestRecommendations_CostTrend(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{"svc": fullLimits()})
	store := usage.NewMemoryStore()

	for day := 5; day >= 0; day-- {
		cost := 1.0
		if day <= 2 {
			cost = 2.0
		}
		storeRecord(t, store, "analysis", 10, cost, epoch.Add(-time.Duration(day)*24*time.Hour))
	}

	recs := svc.CostOptimizationRecommendations(context.Background(), store, "svc")
	trend, ok := findRecommendation(recs, RecommendCostTrendIncrease)
	if !ok {
		t.Fatalf("no cost trend finding in %+v", recs)
	}
	if trend.Priority != PriorityHigh {
		t.Errorf("Priority = %s, want high", trend.Priority)
	}
	if math.Abs(trend.Value-100) > 1e-9 {
		t.Errorf("Value = %v, want 100%%", trend.Value)
	}
}

func TestRecommendations_NoTrendWithFewDays(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{"svc": fullLimits()})
	store := usage.NewMemoryStore()

	storeRecord(t, store, "analysis", 10, 0.1, epoch.Add(-2*24*time.Hour))
	storeRecord(t, store, "analysis", 10, 0.1, epoch.Add(-24*time.Hour))
	storeRecord(t, store, "analysis", 10, 9.0, epoch)

	recs := svc.CostOptimizationRecommendations(context.Background(), store, "svc")
	if _, ok := findRecommendation(recs, RecommendCostTrendIncrease); ok {
		t.Error("three days are not enough for a trend")
	}
}

func TestRecommendations_HighUtilization(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{
		"svc": {RequestsPerMinute: {Threshold: 10, WindowSeconds: 60}},
	})
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		svc.RecordUsage(ctx, UsageEvent{Service: "svc"})
	}

	recs := svc.CostOptimizationRecommendations(ctx, usage.NewMemoryStore(), "svc")
	if len(recs) != 1 {
		t.Fatalf("recommendations = %+v, want one", recs)
	}
	r := recs[0]
	if r.Type != RecommendHighUtilization || r.Dimension != RequestsPerMinute || r.Priority != PriorityMedium {
		t.Errorf("recommendation = %+v", r)
	}
	if math.Abs(r.Value-0.9) > 1e-9 {
		t.Errorf("Value = %v, want 0.9", r.Value)
	}
}

func TestRecommendations_StoreFailure(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{"svc": fullLimits()})
	store := usage.NewMemoryStore()
	store.Close()

	recs := svc.CostOptimizationRecommendations(context.Background(), store, "svc")
	if recs == nil || len(recs) != 0 {
		t.Errorf("recommendations = %#v, want empty non-nil list", recs)
	}
}
