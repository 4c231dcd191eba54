// Package limits governs how fast and how expensively callers may use
// external metered services such as LLM APIs.
//
// # Overview
//
// Every configured service has up to four dimensions:
//
//   - requests_per_minute: one unit per call
//   - tokens_per_minute: estimated or actual tokens
//   - cost_per_hour: spend in cents
//   - cost_per_day: spend in cents
//
// Each (service, dimension) pair owns a token bucket that shapes bursts and
// a sliding window that enforces the quota over the window length.
//
// # Checking and recording
//
// Callers ask CheckRateLimit before issuing a call and RecordUsage after it
// completes:
//
//	res := svc.CheckRateLimit(ctx, limits.CheckRequest{
//	    Service:         "openai",
//	    OperationType:   "analysis",
//	    EstimatedTokens: 1200,
//	    EstimatedCost:   0.03,
//	})
//	if !res.Allowed {
//	    time.Sleep(svc.RecommendedDelay("openai", "analysis"))
//	}
//
// Checks consume bucket credits. Windows only move through RecordUsage.
//
// Decisions are three-valued. An internal failure yields
// DecisionIndeterminate, which is admitted.
//
// # Analytics
//
// UsageStats and CostOptimizationRecommendations combine live window
// state with a usage.HistoryStore supplied per call. Query failures are
// reported in the result rather than returned as errors.
//
// # Sub-packages
//
//   - ratelimit: token bucket, sliding window and Redis window primitives
package limits
