package limits

import (
	"context"
	"errors"
	"testing"

	"github.com/fortinpy85/jddb-sub001/pkg/config"
)

func TestFromConfig_Defaults(t *testing.T) {
	all, err := FromConfig(config.LimitsConfig{})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	openai, ok := all[config.DefaultService]
	if !ok {
		t.Fatalf("FromConfig() = %v, want %s", all, config.DefaultService)
	}
	if len(openai) != len(Dimensions) {
		t.Errorf("got %d dimensions, want %d", len(openai), len(Dimensions))
	}
	if got := openai[RequestsPerMinute]; got.Threshold != 60 || got.WindowSeconds != 60 {
		t.Errorf("requests_per_minute = %+v, want 60 per 60s", got)
	}
}

func TestFromConfig_Services(t *testing.T) {
	cfg := config.LimitsConfig{
		Services: map[string]config.ServiceLimits{
			"anthropic": {
				TokensPerMinute: &config.RateLimitConfig{Threshold: 40000, WindowSeconds: 60},
				CostPerDay:      &config.RateLimitConfig{Threshold: 2500, WindowSeconds: 86400, BurstAllowance: 1.0},
			},
		},
	}

	all, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	dims := all["anthropic"]
	if len(dims) != 2 {
		t.Fatalf("got %d dimensions, want 2", len(dims))
	}
	if got := dims[TokensPerMinute].BurstAllowance; got != DefaultBurstAllowance {
		t.Errorf("BurstAllowance = %v, want default %v", got, DefaultBurstAllowance)
	}
	if got := dims[CostPerDay].BurstAllowance; got != 1.0 {
		t.Errorf("BurstAllowance = %v, want 1.0", got)
	}
}

func TestFromConfig_Invalid(t *testing.T) {
	cfg := config.LimitsConfig{
		Services: map[string]config.ServiceLimits{
			"svc": {RequestsPerMinute: &config.RateLimitConfig{Threshold: 10, WindowSeconds: 0}},
		},
	}
	if _, err := FromConfig(cfg); !errors.Is(err, ErrInvalidRateLimit) {
		t.Errorf("FromConfig() error = %v, want ErrInvalidRateLimit", err)
	}
}

func TestService_Apply(t *testing.T) {
	svc, _ := newTestService(t, map[string]map[Dimension]RateLimit{
		"svc":  {RequestsPerMinute: {Threshold: 1, WindowSeconds: 60}},
		"keep": {RequestsPerMinute: {Threshold: 7, WindowSeconds: 60}},
	})
	ctx := context.Background()
	svc.RecordUsage(ctx, UsageEvent{Service: "svc"})

	err := svc.Apply(config.LimitsConfig{
		Services: map[string]config.ServiceLimits{
			"svc": {RequestsPerMinute: &config.RateLimitConfig{Threshold: 50, WindowSeconds: 60}},
		},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	report, _ := svc.Report(ctx, "svc")
	if got := report[RequestsPerMinute]; got.Limit.Threshold != 50 || got.WindowUsage != 1 {
		t.Errorf("svc = %+v, want threshold 50 with usage kept", got)
	}
	keep, _ := svc.Limits("keep")
	if keep[RequestsPerMinute].Threshold != 7 {
		t.Error("services missing from the config must keep their limits")
	}
}
