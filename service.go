package offload

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/offload/model"
	"github.com/viant/offload/model/types"
	"github.com/viant/offload/protocol"
	"github.com/viant/offload/service/action/archive"
	"github.com/viant/offload/service/action/cleanup"
	"github.com/viant/offload/service/action/document"
	"github.com/viant/offload/service/action/image"
	"github.com/viant/offload/service/config"
	"github.com/viant/offload/service/governor"
	"github.com/viant/offload/service/limits"
	"github.com/viant/offload/service/pool"
	"github.com/viant/offload/worker"
)

// Service is the embeddable facade over the worker pool and governor. A host
// application creates one, starts it, submits operations and forwards user
// activity signals; everything else is internal.
type Service struct {
	config          *config.Config
	limits          limits.AdaptiveLimits
	spawner         pool.Spawner
	poolOptions     []pool.Option
	governorOptions []governor.Option

	pool     *pool.Service
	governor *governor.Service
}

// New creates the offload service. Limits derive from the host snapshot and
// are then narrowed by explicit config overrides.
func New(options ...Option) (*Service, error) {
	s := &Service{config: config.DefaultConfig()}
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.limits.MaxWorkers == 0 {
		s.limits = limits.Derive(limits.Snapshot())
	}
	if s.config.MaxWorkers > 0 {
		s.limits.MaxWorkers = s.config.MaxWorkers
	}
	if s.config.MemoryCeilingMB > 0 {
		s.limits.PerWorkerMemoryCeiling = uint64(s.config.MemoryCeilingMB) << 20
	}
	if s.config.TaskTimeout > 0 {
		s.limits.TaskTimeout = s.config.TaskTimeout
	}
	if s.spawner == nil {
		if s.config.WorkerBinary == "" {
			return nil, fmt.Errorf("worker binary is required (or supply a custom spawner)")
		}
		s.spawner = pool.NewProcessSpawner(s.config.WorkerBinary, s.config.WorkerArgs...)
	}

	poolOptions := append([]pool.Option{
		pool.WithLimits(s.limits),
		pool.WithSpawner(s.spawner),
		pool.WithGracePeriod(s.config.GracePeriod),
	}, s.poolOptions...)
	var err error
	if s.pool, err = pool.New(poolOptions...); err != nil {
		return nil, err
	}

	governorOptions := append([]governor.Option{
		governor.WithThresholds(s.config.IdleAfter, s.config.DeepIdleAfter),
		governor.WithLimitsListener(s.pool.ApplyLimits),
	}, s.governorOptions...)
	s.governor = governor.New(s.pool, governorOptions...)
	return s, nil
}

// Start launches the pool's background sampling and the governor loop.
func (s *Service) Start(ctx context.Context) error {
	s.pool.Start(ctx)
	return s.governor.Start(ctx)
}

// Submit runs one operation out of process and blocks for its terminal
// outcome. A zero timeout uses the adaptive default.
func (s *Service) Submit(ctx context.Context, operation protocol.Operation, payload interface{}, timeout time.Duration) (*model.Outcome, error) {
	return s.pool.Submit(ctx, operation, payload, timeout)
}

// Signal reports user activity to the governor.
func (s *Service) Signal(ctx context.Context, kind governor.SignalKind) {
	s.governor.Signal(ctx, kind)
}

// Stats returns pool occupancy counters.
func (s *Service) Stats() model.Stats {
	return s.pool.Stats()
}

// Pool exposes the pool manager for advanced callers.
func (s *Service) Pool() *pool.Service { return s.pool }

// Governor exposes the governor for advanced callers.
func (s *Service) Governor() *governor.Service { return s.governor }

// Shutdown stops the governor, then drains and terminates all workers.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.governor.Shutdown(); err != nil {
		return err
	}
	return s.pool.Shutdown(ctx)
}

// NewWorkerRuntime assembles a worker runtime with every built-in action
// service registered against a shared temp tracker. The worker binary's main
// calls this and then Run.
func NewWorkerRuntime(tempBaseURL string, options ...worker.Option) *worker.Runtime {
	tracker := worker.NewTempTracker(tempBaseURL)
	registry := worker.NewRegistry()
	for _, service := range builtinActions(tracker) {
		registry.Register(service)
	}
	options = append([]worker.Option{worker.WithTracker(tracker)}, options...)
	return worker.New(registry, options...)
}

func builtinActions(tracker *worker.TempTracker) []types.Service {
	return []types.Service{
		document.New(tracker),
		archive.New(tracker),
		image.New(tracker),
		cleanup.New(tracker),
	}
}
