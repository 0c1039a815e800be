package pool

import (
	"time"

	"github.com/viant/offload/protocol"
	"github.com/viant/offload/service/limits"
)

// Option customises the pool service.
type Option func(*Service)

// WithLimits sets the adaptive limits governing pool size, per-worker memory
// ceiling and the default task timeout.
func WithLimits(adaptive limits.AdaptiveLimits) Option {
	return func(s *Service) { s.limits = adaptive }
}

// WithSpawner sets the worker factory.
func WithSpawner(spawner Spawner) Option {
	return func(s *Service) { s.spawner = spawner }
}

// WithGracePeriod bounds how long a timed-out or terminating worker gets
// between the graceful signal and the forced kill.
func WithGracePeriod(grace time.Duration) Option {
	return func(s *Service) { s.grace = grace }
}

// WithMemorySampleInterval sets how often worker resident memory is sampled.
func WithMemorySampleInterval(interval time.Duration) Option {
	return func(s *Service) { s.sampleInterval = interval }
}

// WithMemorySampler overrides how resident memory is read for a worker pid.
// Tests inject deterministic samplers; production uses gopsutil.
func WithMemorySampler(sampler func(pid int) (uint64, error)) Option {
	return func(s *Service) { s.sampler = sampler }
}

// WithProgressListener registers a callback invoked for every progress frame
// received from any worker. Progress is advisory; the listener must not
// block.
func WithProgressListener(listener func(progress *protocol.Progress)) Option {
	return func(s *Service) { s.progressListener = listener }
}
