package limits

import (
	"fmt"

	"github.com/fortinpy85/jddb-sub001/pkg/config"
)

// FromConfig converts the configured services into the map NewService and
// UpdateRateLimits take.
func FromConfig(cfg config.LimitsConfig) (map[string]map[Dimension]RateLimit, error) {
	services := cfg.Services
	if len(services) == 0 {
		services = config.DefaultServiceLimits()
	}

	out := make(map[string]map[Dimension]RateLimit, len(services))
	for name, svc := range services {
		dims := make(map[Dimension]RateLimit, len(Dimensions))
		var err error
		svc.Each(func(dimension string, rl config.RateLimitConfig) {
			if err != nil {
				return
			}
			var dim Dimension
			dim, err = ParseDimension(dimension)
			if err != nil {
				return
			}
			limit := RateLimit{
				Threshold:      rl.Threshold,
				WindowSeconds:  rl.WindowSeconds,
				BurstAllowance: rl.BurstAllowance,
			}.WithDefaults()
			if verr := limit.Validate(); verr != nil {
				err = &LimitError{Service: name, Dimension: dim, Err: verr}
				return
			}
			dims[dim] = limit
		})
		if err != nil {
			return nil, fmt.Errorf("limits config: %w", err)
		}
		out[name] = dims
	}
	return out, nil
}

// Apply pushes every configured service into s with UpdateRateLimits.
// Services missing from cfg keep their current limits. The first error
// stops the remaining updates.
func (s *Service) Apply(cfg config.LimitsConfig) error {
	all, err := FromConfig(cfg)
	if err != nil {
		return err
	}
	for name, dims := range all {
		if err := s.UpdateRateLimits(name, dims); err != nil {
			return err
		}
	}
	return nil
}
