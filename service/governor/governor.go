package governor

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/offload/internal/clock"
	"github.com/viant/offload/service/limits"
)

// State of user engagement as observed by the governor.
type State string

const (
	// StateActive means recent user activity; workers run at full priority.
	StateActive State = "active"
	// StateIdle means no activity past the idle threshold; priorities are
	// lowered and one GC pass reclaims easy memory.
	StateIdle State = "idle"
	// StateDeepIdle means prolonged inactivity; workers drop to minimum
	// priority, the idle pool shrinks and memory is returned to the OS.
	StateDeepIdle State = "deepIdle"
)

// SignalKind identifies a user-activity event.
type SignalKind string

const (
	SignalFocus             SignalKind = "focus"
	SignalInput             SignalKind = "input"
	SignalDocumentOperation SignalKind = "documentOperation"
	SignalMenuAction        SignalKind = "menuAction"
)

// WorkerSet is the slice of the pool the governor acts on.
type WorkerSet interface {
	// Pids lists OS process ids of live workers.
	Pids() []int
	// ShrinkIdle terminates idle workers down to target, returning the count.
	ShrinkIdle(target int) int
}

// nice values per state; higher means lower OS priority.
const (
	activeWorkerNice   = 5
	idleWorkerNice     = 10
	deepIdleWorkerNice = 19
	activeSelfNice     = -5
	idleSelfNice       = 5
	deepIdleSelfNice   = 10
	loadBoostDelta     = 5
)

// Service demotes background work as the user disengages and restores it on
// any activity signal. Every adjustment is advisory: failures are logged and
// the rest of the system keeps running.
type Service struct {
	workers       WorkerSet
	idleAfter     time.Duration
	deepIdleAfter time.Duration
	interval      time.Duration
	cores         int

	capabilities Capabilities
	shell        *gosh.Service
	// runCommand abstracts shell execution so tests can intercept renice.
	runCommand func(ctx context.Context, command string) (int, error)
	// loadAverage abstracts the host load reading.
	loadAverage func() (float64, error)
	// onLimits receives re-derived limits when the load regime shifts.
	onLimits func(adaptive limits.AdaptiveLimits)

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	lastSnapshot limits.SystemSnapshot
	loadBoosted  bool
	started      bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a governor over the given worker set.
func New(workers WorkerSet, options ...Option) *Service {
	s := &Service{
		workers:       workers,
		idleAfter:     5 * time.Minute,
		deepIdleAfter: 15 * time.Minute,
		interval:      30 * time.Second,
		cores:         runtime.NumCPU(),
		state:         StateActive,
		lastActivity:  clock.Now(),
		loadAverage:   hostLoadAverage,
		stopCh:        make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Start probes host capabilities and launches the evaluation loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("governor already started")
	}
	s.started = true
	s.mu.Unlock()

	if s.runCommand == nil {
		shell, err := gosh.New(ctx, local.New())
		if err != nil {
			log.Printf("governor: local shell unavailable, priority adjustment disabled: %v", err)
		} else {
			s.shell = shell
			s.runCommand = func(ctx context.Context, command string) (int, error) {
				_, status, err := shell.Run(ctx, command, runner.WithTimeout(int((5 * time.Second).Milliseconds())))
				return status, err
			}
		}
	}
	s.capabilities = s.probeCapabilities(ctx)
	s.lastSnapshot = limits.Snapshot()
	s.applyState(ctx, StateActive)

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Shutdown stops the evaluation loop and releases the shell session.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()
	close(s.stopCh)
	s.wg.Wait()
	if s.shell != nil {
		return s.shell.Close()
	}
	return nil
}

// Capabilities reports what the startup probe established.
func (s *Service) Capabilities() Capabilities {
	return s.capabilities
}

// State returns the current engagement state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Signal records user activity. Any signal kind resets the governor to
// Active; unknown kinds are accepted so new UI surfaces can report activity
// without a governor change.
func (s *Service) Signal(ctx context.Context, _ SignalKind) {
	s.mu.Lock()
	s.lastActivity = clock.Now()
	wasActive := s.state == StateActive
	s.mu.Unlock()
	if !wasActive {
		s.applyState(ctx, StateActive)
	}
}

// Evaluate advances the state machine from the time elapsed since the last
// activity signal. Without a signal the state only moves toward deeper idle.
func (s *Service) Evaluate(ctx context.Context) State {
	s.mu.Lock()
	elapsed := clock.Now().Sub(s.lastActivity)
	current := s.state
	s.mu.Unlock()

	next := current
	switch {
	case elapsed >= s.deepIdleAfter:
		next = StateDeepIdle
	case elapsed >= s.idleAfter:
		if current == StateActive {
			next = StateIdle
		}
	}
	if next != current {
		s.applyState(ctx, next)
	}
	s.adaptToLoad()
	// Re-applied every pass so workers spawned since the previous evaluation
	// inherit the current priority.
	s.reniceWorkers(ctx, s.effectiveWorkerNice())
	s.rederiveLimits()
	return next
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Evaluate(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// applyState transitions to the given state and applies its effects.
func (s *Service) applyState(ctx context.Context, state State) {
	s.mu.Lock()
	s.state = state
	s.loadBoosted = false
	s.mu.Unlock()

	switch state {
	case StateActive:
		s.reniceSelf(ctx, activeSelfNice)
		s.reniceWorkers(ctx, activeWorkerNice)
		if s.capabilities.CanAdjustGC {
			debug.SetGCPercent(100)
		}
	case StateIdle:
		s.reniceSelf(ctx, idleSelfNice)
		s.reniceWorkers(ctx, idleWorkerNice)
		runtime.GC()
	case StateDeepIdle:
		s.reniceSelf(ctx, deepIdleSelfNice)
		s.reniceWorkers(ctx, deepIdleWorkerNice)
		if s.capabilities.CanAdjustGC {
			debug.SetGCPercent(50)
		}
		debug.FreeOSMemory()
		if s.workers != nil {
			if shrunk := s.workers.ShrinkIdle(0); shrunk > 0 {
				log.Printf("governor: deep idle, released %v idle workers", shrunk)
			}
		}
	}
}

// adaptToLoad marks a boost while the one-minute load average exceeds the
// core count; the boost pushes worker priority below the state baseline until
// the load drops again.
func (s *Service) adaptToLoad() {
	load1, err := s.loadAverage()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.loadBoosted = load1 > float64(s.cores)
	s.mu.Unlock()
}

// effectiveWorkerNice combines the state baseline with the load boost.
func (s *Service) effectiveWorkerNice() int {
	s.mu.Lock()
	state, boosted := s.state, s.loadBoosted
	s.mu.Unlock()
	nice := baselineWorkerNice(state)
	if boosted {
		nice += loadBoostDelta
		if nice > deepIdleWorkerNice {
			nice = deepIdleWorkerNice
		}
	}
	return nice
}

// rederiveLimits re-reads the host snapshot and publishes new limits when the
// regime has materially shifted.
func (s *Service) rederiveLimits() {
	if s.onLimits == nil {
		return
	}
	snapshot := limits.Snapshot()
	s.mu.Lock()
	material := limits.MateriallyDifferent(s.lastSnapshot, snapshot)
	if material {
		s.lastSnapshot = snapshot
	}
	s.mu.Unlock()
	if material {
		s.onLimits(limits.Derive(snapshot))
	}
}

func baselineWorkerNice(state State) int {
	switch state {
	case StateIdle:
		return idleWorkerNice
	case StateDeepIdle:
		return deepIdleWorkerNice
	default:
		return activeWorkerNice
	}
}

func (s *Service) reniceWorkers(ctx context.Context, nice int) {
	if !s.capabilities.CanRenice || s.workers == nil {
		return
	}
	pids := s.workers.Pids()
	if len(pids) == 0 {
		return
	}
	args := make([]string, 0, len(pids))
	for _, pid := range pids {
		args = append(args, strconv.Itoa(pid))
	}
	s.renice(ctx, nice, strings.Join(args, " "))
}

func (s *Service) reniceSelf(ctx context.Context, nice int) {
	if !s.capabilities.CanRenice {
		return
	}
	s.renice(ctx, nice, strconv.Itoa(selfPid()))
}

func (s *Service) renice(ctx context.Context, nice int, pids string) {
	if s.runCommand == nil {
		return
	}
	status, err := s.runCommand(ctx, fmt.Sprintf("renice -n %d -p %s", nice, pids))
	if err != nil || status != 0 {
		log.Printf("governor: renice -n %d -p %s failed (status %v): %v", nice, pids, status, err)
	}
}

func hostLoadAverage() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}
