package governor

import (
	"context"
	"time"

	"github.com/viant/offload/service/limits"
)

// Option customises the governor.
type Option func(*Service)

// WithThresholds overrides how long without activity moves the governor to
// idle and deep idle.
func WithThresholds(idleAfter, deepIdleAfter time.Duration) Option {
	return func(s *Service) {
		s.idleAfter = idleAfter
		s.deepIdleAfter = deepIdleAfter
	}
}

// WithInterval sets how often the evaluation loop runs.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) { s.interval = interval }
}

// WithCores overrides the core count used by load adaptation.
func WithCores(cores int) Option {
	return func(s *Service) { s.cores = cores }
}

// WithCommandRunner overrides shell execution; tests use this to record
// renice invocations without touching OS priorities.
func WithCommandRunner(run func(ctx context.Context, command string) (int, error)) Option {
	return func(s *Service) { s.runCommand = run }
}

// WithLoadAverage overrides the host load reading.
func WithLoadAverage(read func() (float64, error)) Option {
	return func(s *Service) { s.loadAverage = read }
}

// WithLimitsListener registers a callback for limits re-derived after a
// material shift in the host's load regime.
func WithLimitsListener(listener func(adaptive limits.AdaptiveLimits)) Option {
	return func(s *Service) { s.onLimits = listener }
}
