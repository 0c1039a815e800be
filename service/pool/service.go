package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/offload/internal/clock"
	"github.com/viant/offload/internal/idgen"
	"github.com/viant/offload/model"
	"github.com/viant/offload/protocol"
	"github.com/viant/offload/service/limits"
	"github.com/viant/offload/tracing"
)

// Service owns a bounded set of worker processes, routes submitted tasks to
// an idle or newly spawned worker, enforces per-task deadlines and per-worker
// memory ceilings, and recycles or kills workers accordingly. Task state
// transitions happen under the service mutex; task execution happens in a
// separate process and never holds it.
type Service struct {
	limits           limits.AdaptiveLimits
	spawner          Spawner
	grace            time.Duration
	sampleInterval   time.Duration
	sampler          func(pid int) (uint64, error)
	progressListener func(progress *protocol.Progress)

	mu       sync.Mutex
	workers  map[string]*handle
	idle     []*handle
	waiters  []chan *handle
	spawning int
	closed   bool
	spawned  int
	killed   int

	shutdownCh chan struct{}
	loopWg     sync.WaitGroup
}

// New creates a pool manager. A spawner is required; limits default to ones
// derived from the current host snapshot.
func New(options ...Option) (*Service, error) {
	s := &Service{
		grace:          3 * time.Second,
		sampleInterval: 2 * time.Second,
		sampler:        residentMemory,
		workers:        make(map[string]*handle),
		shutdownCh:     make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	if s.spawner == nil {
		return nil, fmt.Errorf("spawner is required")
	}
	if s.limits.MaxWorkers == 0 {
		s.limits = limits.Derive(limits.Snapshot())
	}
	return s, nil
}

// Start launches the background memory sampler.
func (s *Service) Start(ctx context.Context) {
	s.loopWg.Add(1)
	go s.sampleLoop(ctx)
}

// Limits returns the limits currently governing the pool.
func (s *Service) Limits() limits.AdaptiveLimits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// ApplyLimits installs re-derived limits. Existing workers keep their
// original ceiling; new spawns pick up the new one.
func (s *Service) ApplyLimits(adaptive limits.AdaptiveLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = adaptive
}

// Submit dispatches one task and blocks until its terminal outcome: result,
// error or timeout. The pool never retries on the caller's behalf - the
// failed operation may not be idempotent, so retry is the caller's decision.
func (s *Service) Submit(ctx context.Context, operation protocol.Operation, payload interface{}, timeout time.Duration) (outcome *model.Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("pool.Submit %s", operation), "CLIENT")
	defer func() { tracing.EndSpan(span, err) }()

	if !operation.Known() {
		return nil, fmt.Errorf("%w: %v", model.ErrUnknownOperation, operation)
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	if timeout <= 0 {
		timeout = s.Limits().TaskTimeout
	}
	task := model.NewTask(operation, raw, timeout)
	span.WithAttributes(map[string]string{"task.id": task.ID})

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		h, acquireErr := s.acquire(ctx, deadline.C)
		if acquireErr != nil {
			if acquireErr == errAcquireTimeout {
				return &model.Outcome{TaskID: task.ID, Kind: model.OutcomeTimeout, Elapsed: clock.Now().Sub(task.SubmittedAt)}, nil
			}
			return nil, acquireErr
		}
		resultCh, assignErr := h.assign(task.ID)
		if assignErr != nil {
			// The handle was claimed or killed between hand-off and
			// assignment; go back for another worker.
			continue
		}
		if dispatchErr := h.dispatch(&protocol.Task{ID: task.ID, Operation: task.Operation, Payload: task.Payload}); dispatchErr != nil {
			h.resolve(&model.Outcome{TaskID: task.ID, Kind: model.OutcomeError, Reason: model.ReasonWorkerDied, Message: dispatchErr.Error()})
			s.kill(h, model.ReasonWorkerDied)
			outcome = <-resultCh
			outcome.Elapsed = clock.Now().Sub(task.SubmittedAt)
			return outcome, nil
		}

		select {
		case outcome = <-resultCh:
		case <-deadline.C:
			if h.resolve(&model.Outcome{TaskID: task.ID, Kind: model.OutcomeTimeout}) {
				s.kill(h, "timeout")
			}
			outcome = <-resultCh
		case <-ctx.Done():
			if h.resolve(&model.Outcome{TaskID: task.ID, Kind: model.OutcomeError, Reason: "canceled", Message: ctx.Err().Error()}) {
				s.kill(h, "canceled")
			}
			outcome = <-resultCh
		}
		outcome.Elapsed = clock.Now().Sub(task.SubmittedAt)
		return outcome, nil
	}
}

// Stats returns a read-only snapshot of pool occupancy.
func (s *Service) Stats() model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := model.Stats{
		Queued:  len(s.waiters),
		Spawned: s.spawned,
		Killed:  s.killed,
	}
	for _, h := range s.workers {
		switch h.getState() {
		case StateBusy:
			stats.Active++
		case StateIdle:
			stats.Idle++
		}
	}
	return stats
}

// Pids lists OS process ids of live workers, for priority adjustment.
func (s *Service) Pids() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make([]int, 0, len(s.workers))
	for _, h := range s.workers {
		if pid := h.transport.PID(); pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

// ShrinkIdle terminates idle workers until at most target remain idle,
// returning how many were asked to go. Busy workers are never touched.
func (s *Service) ShrinkIdle(target int) int {
	s.mu.Lock()
	var victims []*handle
	for len(s.idle) > target {
		last := len(s.idle) - 1
		victims = append(victims, s.idle[last])
		s.idle = s.idle[:last]
	}
	s.mu.Unlock()
	for _, h := range victims {
		s.kill(h, "pool shrink")
	}
	return len(victims)
}

// Shutdown stops intake, signals all workers and force-kills those that
// outlive the grace period.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	waiters := s.waiters
	s.waiters = nil
	var all []*handle
	for _, h := range s.workers {
		all = append(all, h)
	}
	s.mu.Unlock()

	close(s.shutdownCh)
	for _, waiter := range waiters {
		close(waiter)
	}
	for _, h := range all {
		h.setState(StateTerminating)
		if err := h.transport.Signal(); err != nil {
			_ = h.transport.Kill()
		}
	}
	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		remaining := len(s.workers)
		s.mu.Unlock()
		if remaining == 0 {
			break
		}
		select {
		case <-deadline.C:
			s.mu.Lock()
			for _, h := range s.workers {
				_ = h.transport.Kill()
			}
			s.mu.Unlock()
			s.loopWg.Wait()
			return nil
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.loopWg.Wait()
	return nil
}

// errAcquireTimeout distinguishes queue-wait expiry from hard errors.
var errAcquireTimeout = fmt.Errorf("timed out waiting for worker")

// acquire returns an idle worker, spawning below MaxWorkers and queuing at
// capacity. Tasks submitted while capacity is available always spawn rather
// than queue.
func (s *Service) acquire(ctx context.Context, deadline <-chan time.Time) (*handle, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, model.ErrPoolClosed
		}
		if n := len(s.idle); n > 0 {
			h := s.idle[n-1]
			s.idle = s.idle[:n-1]
			s.mu.Unlock()
			return h, nil
		}
		if len(s.workers)+s.spawning < s.limits.MaxWorkers {
			s.spawning++
			s.mu.Unlock()
			return s.spawn(ctx)
		}
		waiter := make(chan *handle, 1)
		s.waiters = append(s.waiters, waiter)
		s.mu.Unlock()

		select {
		case h, ok := <-waiter:
			if !ok {
				return nil, model.ErrPoolClosed
			}
			if h == nil {
				// Capacity freed without an idle worker; retry and spawn.
				continue
			}
			return h, nil
		case <-deadline:
			s.dropWaiter(waiter)
			return nil, errAcquireTimeout
		case <-ctx.Done():
			s.dropWaiter(waiter)
			return nil, ctx.Err()
		}
	}
}

func (s *Service) dropWaiter(waiter chan *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.waiters {
		if candidate == waiter {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// spawn starts a new worker and registers its reader loop. The caller must
// have reserved a spawning slot.
func (s *Service) spawn(ctx context.Context) (*handle, error) {
	transport, err := s.spawner(ctx)
	s.mu.Lock()
	s.spawning--
	if err != nil {
		// The reserved slot is free again; wake a queued waiter so it can
		// retry the spawn instead of sleeping out its deadline.
		var waiter chan *handle
		if len(s.waiters) > 0 {
			waiter = s.waiters[0]
			s.waiters = s.waiters[1:]
		}
		s.mu.Unlock()
		if waiter != nil {
			waiter <- nil
		}
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}
	h := &handle{
		id:            idgen.New(),
		transport:     transport,
		memoryCeiling: s.limits.PerWorkerMemoryCeiling,
		spawnedAt:     clock.Now(),
		state:         StateIdle,
	}
	s.workers[h.id] = h
	s.spawned++
	s.mu.Unlock()

	s.loopWg.Add(1)
	go s.readLoop(h)
	return h, nil
}

// readLoop pumps frames from one worker, routing progress to the listener
// and terminal frames to the pending task. It exits when the worker dies.
func (s *Service) readLoop(h *handle) {
	defer s.loopWg.Done()
	for {
		frame, err := h.transport.Receive()
		if err != nil {
			s.onWorkerDeath(h, err)
			return
		}
		switch frame.Kind {
		case protocol.KindProgress:
			h.touch()
			if s.progressListener != nil {
				s.progressListener(frame.Progress)
			}
		case protocol.KindResult:
			h.resolve(&model.Outcome{TaskID: frame.Result.TaskID, Kind: model.OutcomeResult, Data: frame.Result.Data})
			s.recycle(h)
		case protocol.KindError:
			reason := frame.Error.Reason
			if reason == "" {
				reason = model.ReasonHandler
			}
			h.resolve(&model.Outcome{TaskID: frame.Error.TaskID, Kind: model.OutcomeError, Reason: reason, Message: frame.Error.Message})
			s.recycle(h)
		default:
			// A worker must never send task frames.
			h.resolve(&model.Outcome{TaskID: h.currentTask(), Kind: model.OutcomeError, Reason: model.ReasonProtocolViolation, Message: fmt.Sprintf("unexpected %v frame", frame.Kind)})
			s.kill(h, model.ReasonProtocolViolation)
			return
		}
	}
}

// onWorkerDeath fails the in-flight task (if any) and removes the worker.
func (s *Service) onWorkerDeath(h *handle, err error) {
	h.resolve(&model.Outcome{Kind: model.OutcomeError, Reason: model.ReasonWorkerDied, Message: err.Error()})
	h.setState(StateDead)
	s.remove(h)
	_ = h.transport.Close()
}

// recycle returns a worker to the idle set after a terminal frame, handing
// it straight to a queued waiter when one exists.
func (s *Service) recycle(h *handle) {
	if h.getState() != StateBusy {
		return
	}
	h.setState(StateIdle)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.waiters) > 0 {
		waiter := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		waiter <- h
		return
	}
	s.idle = append(s.idle, h)
	s.mu.Unlock()
}

// kill terminates a worker: graceful signal, grace period, forced kill. The
// handle leaves the pool immediately so its capacity frees up. Only this
// path counts toward Stats.Killed; workers retiring through Shutdown or
// natural exit do not.
func (s *Service) kill(h *handle, reason string) {
	h.setState(StateTerminating)
	if s.remove(h) {
		s.mu.Lock()
		s.killed++
		s.mu.Unlock()
	}
	if err := h.transport.Signal(); err != nil {
		_ = h.transport.Kill()
		_ = h.transport.Close()
		return
	}
	grace := s.grace
	go func() {
		time.Sleep(grace)
		if err := h.transport.Kill(); err == nil {
			log.Printf("pool: force-killed worker %v after grace period (%v)", h.id, reason)
		}
		_ = h.transport.Close()
	}()
}

// remove deletes the handle from the pool and wakes one waiter so it can
// observe the freed capacity. It reports whether the handle was still
// present.
func (s *Service) remove(h *handle) bool {
	s.mu.Lock()
	if _, ok := s.workers[h.id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.workers, h.id)
	for i, candidate := range s.idle {
		if candidate == h {
			s.idle = append(s.idle[:i], s.idle[i+1:]...)
			break
		}
	}
	var waiter chan *handle
	if len(s.waiters) > 0 {
		waiter = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.mu.Unlock()
	if waiter != nil {
		waiter <- nil
	}
	return true
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch actual := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return actual, nil
	default:
		return json.Marshal(payload)
	}
}
