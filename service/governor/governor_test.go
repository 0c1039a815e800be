package governor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/offload/internal/clock"
)

type fakeWorkers struct {
	mu      sync.Mutex
	pids    []int
	shrunk  int
	targets []int
}

func (f *fakeWorkers) Pids() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pids
}

func (f *fakeWorkers) ShrinkIdle(target int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.shrunk += len(f.pids)
	released := len(f.pids)
	f.pids = nil
	return released
}

type commandRecorder struct {
	mu       sync.Mutex
	commands []string
}

func (r *commandRecorder) run(_ context.Context, command string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	return 0, nil
}

func (r *commandRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.commands...)
}

func stubClock(t *testing.T) func(d time.Duration) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mu := sync.Mutex{}
	clock.NowFunc = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	t.Cleanup(func() { clock.NowFunc = time.Now })
	return func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
}

func newTestGovernor(t *testing.T, workers *fakeWorkers, recorder *commandRecorder) *Service {
	service := New(workers,
		WithThresholds(5*time.Minute, 15*time.Minute),
		WithInterval(time.Hour),
		WithCores(8),
		WithCommandRunner(recorder.run),
		WithLoadAverage(func() (float64, error) { return 0.5, nil }))
	if !assert.Nil(t, service.Start(context.Background())) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = service.Shutdown() })
	return service
}

func TestService_MonotonicIdleProgression(t *testing.T) {
	advance := stubClock(t)
	workers := &fakeWorkers{pids: []int{101, 102}}
	recorder := &commandRecorder{}
	service := newTestGovernor(t, workers, recorder)
	ctx := context.Background()

	assert.True(t, service.Capabilities().CanRenice)
	assert.Equal(t, StateActive, service.State())

	// Short inactivity keeps the state.
	advance(2 * time.Minute)
	assert.Equal(t, StateActive, service.Evaluate(ctx))

	advance(4 * time.Minute)
	assert.Equal(t, StateIdle, service.Evaluate(ctx))

	// Idle never regresses to Active without a signal.
	assert.Equal(t, StateIdle, service.Evaluate(ctx))

	advance(10 * time.Minute)
	assert.Equal(t, StateDeepIdle, service.Evaluate(ctx))
	assert.Equal(t, []int{0}, workers.targets, "deep idle shrinks the pool toward zero")
	assert.Equal(t, StateDeepIdle, service.Evaluate(ctx), "deep idle is terminal without a signal")
}

func TestService_SignalResetsToActive(t *testing.T) {
	advance := stubClock(t)
	workers := &fakeWorkers{pids: []int{201}}
	recorder := &commandRecorder{}
	service := newTestGovernor(t, workers, recorder)
	ctx := context.Background()

	advance(20 * time.Minute)
	assert.Equal(t, StateDeepIdle, service.Evaluate(ctx))

	for _, kind := range []SignalKind{SignalFocus, SignalInput, SignalDocumentOperation, SignalMenuAction} {
		service.Signal(ctx, kind)
		assert.Equal(t, StateActive, service.State(), string(kind))
		advance(20 * time.Minute)
		assert.Equal(t, StateDeepIdle, service.Evaluate(ctx))
	}
}

func TestService_ReniceCommands(t *testing.T) {
	advance := stubClock(t)
	workers := &fakeWorkers{pids: []int{301, 302}}
	recorder := &commandRecorder{}
	service := newTestGovernor(t, workers, recorder)
	ctx := context.Background()

	advance(6 * time.Minute)
	service.Evaluate(ctx)

	var workerRenice []string
	for _, command := range recorder.recorded() {
		if strings.Contains(command, "301 302") {
			workerRenice = append(workerRenice, command)
		}
	}
	if assert.True(t, len(workerRenice) >= 2, "active then idle worker renice") {
		assert.Contains(t, workerRenice[0], "renice -n 5 ")
		assert.Contains(t, workerRenice[len(workerRenice)-1], "renice -n 10 ")
	}
}

func TestService_LoadAdaptation(t *testing.T) {
	stubClock(t)
	workers := &fakeWorkers{pids: []int{401}}
	recorder := &commandRecorder{}
	currentLoad := 0.5
	mu := sync.Mutex{}
	service := New(workers,
		WithInterval(time.Hour),
		WithCores(4),
		WithCommandRunner(recorder.run),
		WithLoadAverage(func() (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			return currentLoad, nil
		}))
	assert.Nil(t, service.Start(context.Background()))
	defer service.Shutdown()
	ctx := context.Background()

	before := len(recorder.recorded())
	mu.Lock()
	currentLoad = 9.0
	mu.Unlock()
	service.Evaluate(ctx)
	commands := recorder.recorded()
	if assert.True(t, len(commands) > before, "high load demotes workers") {
		assert.Contains(t, commands[len(commands)-1], "renice -n 10 -p 401")
	}

	mu.Lock()
	currentLoad = 0.5
	mu.Unlock()
	service.Evaluate(ctx)
	commands = recorder.recorded()
	assert.Contains(t, commands[len(commands)-1], "renice -n 5 -p 401", "baseline restored")
}

func TestService_AdjustmentFailuresAreNotFatal(t *testing.T) {
	stubClock(t)
	workers := &fakeWorkers{pids: []int{501}}
	service := New(workers,
		WithInterval(time.Hour),
		WithCommandRunner(func(context.Context, string) (int, error) { return 1, nil }),
		WithLoadAverage(func() (float64, error) { return 0.5, nil }))
	assert.Nil(t, service.Start(context.Background()))
	defer service.Shutdown()

	assert.False(t, service.Capabilities().CanRenice)
	assert.True(t, service.Capabilities().CanAdjustGC)
	service.Signal(context.Background(), SignalInput)
	assert.Equal(t, StateActive, service.State())
}
