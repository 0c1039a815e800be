package pool_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/offload/model"
	"github.com/viant/offload/model/types"
	"github.com/viant/offload/protocol"
	"github.com/viant/offload/service/action/image"
	"github.com/viant/offload/service/limits"
	"github.com/viant/offload/service/pool"
	"github.com/viant/offload/worker"
)

// echoInput drives the slow test handler behind document/load.
type echoInput struct {
	Text    string `json:"text"`
	DelayMs int    `json:"delayMs"`
}

type echoOutput struct {
	Echo string `json:"echo"`
}

// echoService stands in for the document service with a handler whose
// duration the test controls.
type echoService struct{}

func (s *echoService) Name() string { return "document" }

func (s *echoService) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:   "load",
			Input:  reflect.TypeOf(&echoInput{}),
			Output: reflect.TypeOf(&echoOutput{}),
		},
	}
}

func (s *echoService) Method(name string) (types.Executable, error) {
	if strings.ToLower(name) != "load" {
		return nil, types.NewMethodNotFoundError(name)
	}
	return func(ctx context.Context, in, out interface{}) error {
		input := in.(*echoInput)
		output := out.(*echoOutput)
		if input.DelayMs > 0 {
			select {
			case <-time.After(time.Duration(input.DelayMs) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		output.Echo = input.Text
		return nil
	}, nil
}

var errKilled = errors.New("worker killed")

// loopbackTransport runs a worker runtime in-process over pipes; the pool
// sees the exact byte stream a spawned process would produce.
type loopbackTransport struct {
	pid         int
	encoder     *protocol.Encoder
	decoder     *protocol.Decoder
	taskWriter  *io.PipeWriter
	frameReader *io.PipeReader
	cancel      context.CancelFunc
	once        sync.Once
}

func (t *loopbackTransport) Send(frame *protocol.Frame) error { return t.encoder.Encode(frame) }

func (t *loopbackTransport) Receive() (*protocol.Frame, error) { return t.decoder.Decode() }

func (t *loopbackTransport) Signal() error {
	// Graceful path: closing the task stream is the loopback's SIGTERM.
	return t.taskWriter.Close()
}

func (t *loopbackTransport) Kill() error {
	t.cancel()
	_ = t.taskWriter.CloseWithError(errKilled)
	_ = t.frameReader.CloseWithError(errKilled)
	return nil
}

func (t *loopbackTransport) PID() int { return t.pid }

func (t *loopbackTransport) Close() error {
	t.once.Do(func() {
		_ = t.frameReader.Close()
	})
	return nil
}

var nextPid int64 = 1000

func newLoopbackSpawner(t *testing.T) pool.Spawner {
	return func(ctx context.Context) (pool.Transport, error) {
		taskReader, taskWriter := io.Pipe()
		frameReader, frameWriter := io.Pipe()
		tracker := worker.NewTempTracker("file://" + t.TempDir())
		registry := worker.NewRegistry()
		registry.Register(image.New(tracker))
		registry.Register(&echoService{})
		runtime := worker.New(registry,
			worker.WithStreams(taskReader, frameWriter),
			worker.WithTracker(tracker),
			worker.WithGracePeriod(50*time.Millisecond))

		workerCtx, cancel := context.WithCancel(context.Background())
		go func() {
			_ = runtime.Run(workerCtx)
			_ = frameWriter.Close()
		}()
		return &loopbackTransport{
			pid:         int(atomic.AddInt64(&nextPid, 1)),
			encoder:     protocol.NewEncoder(taskWriter),
			decoder:     protocol.NewDecoder(frameReader),
			taskWriter:  taskWriter,
			frameReader: frameReader,
			cancel:      cancel,
		}, nil
	}
}

func testLimits(maxWorkers int) limits.AdaptiveLimits {
	return limits.AdaptiveLimits{
		MaxWorkers:             maxWorkers,
		PerWorkerMemoryCeiling: 512 << 20,
		TaskTimeout:            5 * time.Second,
	}
}

func newTestPool(t *testing.T, maxWorkers int, extra ...pool.Option) *pool.Service {
	options := append([]pool.Option{
		pool.WithLimits(testLimits(maxWorkers)),
		pool.WithSpawner(newLoopbackSpawner(t)),
		pool.WithGracePeriod(100 * time.Millisecond),
	}, extra...)
	service, err := pool.New(options...)
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	return service
}

func TestService_SubmitResult(t *testing.T) {
	service := newTestPool(t, 2)
	defer service.Shutdown(context.Background())

	content := strings.Repeat("x", 512*1024)
	outcome, err := service.Submit(context.Background(), protocol.ImageHash,
		&image.HashInput{Data: []byte(content)}, time.Minute)
	if !assert.Nil(t, err) {
		return
	}
	assert.True(t, outcome.Success())
	assert.NotEmpty(t, outcome.WorkerID)

	output := &image.HashOutput{}
	assert.Nil(t, outcome.Unmarshal(output))
	assert.Equal(t, 16, len(output.Hash))
	assert.Equal(t, 512*1024, output.Size)
	assert.NotEmpty(t, output.TempPath)

	// Identical bytes hash to the identical artifact path on a later task.
	repeat, err := service.Submit(context.Background(), protocol.ImageHash,
		&image.HashInput{Data: []byte(content)}, time.Minute)
	assert.Nil(t, err)
	repeatOutput := &image.HashOutput{}
	assert.Nil(t, repeat.Unmarshal(repeatOutput))
	assert.Equal(t, output.Hash, repeatOutput.Hash)

	time.Sleep(50 * time.Millisecond)
	stats := service.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.True(t, stats.Idle >= 1)
}

func TestService_SpawnBeforeQueue(t *testing.T) {
	service := newTestPool(t, 2)
	defer service.Shutdown(context.Background())

	wg := sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := service.Submit(context.Background(), protocol.DocumentLoad,
				&echoInput{Text: fmt.Sprintf("task-%d", i), DelayMs: 150}, time.Minute)
			assert.Nil(t, err)
			assert.True(t, outcome.Success())
		}(i)
	}
	time.Sleep(75 * time.Millisecond)
	stats := service.Stats()
	assert.Equal(t, 0, stats.Queued, "capacity available, nothing queues")
	assert.Equal(t, 2, stats.Active)
	wg.Wait()
	assert.Equal(t, 2, service.Stats().Spawned)
}

func TestService_QueuesAtCapacity(t *testing.T) {
	service := newTestPool(t, 1)
	defer service.Shutdown(context.Background())

	wg := sync.WaitGroup{}
	results := make([]*model.Outcome, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := service.Submit(context.Background(), protocol.DocumentLoad,
				&echoInput{Text: fmt.Sprintf("task-%d", i), DelayMs: 80}, time.Minute)
			assert.Nil(t, err)
			results[i] = outcome
		}(i)
	}
	wg.Wait()
	for i, outcome := range results {
		if assert.NotNil(t, outcome, i) {
			assert.True(t, outcome.Success(), i)
		}
	}
	stats := service.Stats()
	assert.Equal(t, 1, stats.Spawned, "single worker served all tasks")
	assert.Equal(t, 0, stats.Queued)
}

func TestService_Timeout(t *testing.T) {
	service := newTestPool(t, 1)
	defer service.Shutdown(context.Background())

	outcome, err := service.Submit(context.Background(), protocol.DocumentLoad,
		&echoInput{Text: "slow", DelayMs: 2000}, 50*time.Millisecond)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, model.OutcomeTimeout, outcome.Kind)

	// The worker was removed, not recycled; the next task gets a fresh one.
	time.Sleep(200 * time.Millisecond)
	stats := service.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Idle)

	next, err := service.Submit(context.Background(), protocol.DocumentLoad,
		&echoInput{Text: "quick"}, time.Minute)
	assert.Nil(t, err)
	assert.True(t, next.Success())
	assert.Equal(t, 2, service.Stats().Spawned)
}

func TestService_MemoryCeilingBreach(t *testing.T) {
	service := newTestPool(t, 1,
		pool.WithMemorySampleInterval(10*time.Millisecond),
		pool.WithMemorySampler(func(pid int) (uint64, error) {
			return 600 << 20, nil
		}))
	ctx := context.Background()
	service.Start(ctx)
	defer service.Shutdown(ctx)

	outcome, err := service.Submit(ctx, protocol.DocumentLoad,
		&echoInput{Text: "hog", DelayMs: 2000}, time.Minute)
	if !assert.Nil(t, err) {
		return
	}
	assert.Equal(t, model.OutcomeError, outcome.Kind)
	assert.Equal(t, model.ReasonResourceExhaustion, outcome.Reason, "breach is an error, never a timeout")
}

func TestService_ConcurrentLimitsUpdates(t *testing.T) {
	service := newTestPool(t, 2)
	defer service.Shutdown(context.Background())
	ctx := context.Background()

	// The governor re-derives limits while submissions resolve their default
	// timeout from them; both sides must serialize on the pool's state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			adjusted := testLimits(2)
			adjusted.TaskTimeout = time.Duration(i+1) * time.Second
			service.ApplyLimits(adjusted)
		}
	}()
	for i := 0; i < 10; i++ {
		outcome, err := service.Submit(ctx, protocol.DocumentLoad,
			&echoInput{Text: "default deadline"}, 0)
		if !assert.Nil(t, err) {
			return
		}
		assert.True(t, outcome.Success())
	}
	<-done
	assert.Equal(t, 200*time.Second, service.Limits().TaskTimeout)
}

func TestService_SpawnFailureWakesWaiter(t *testing.T) {
	gate := make(chan struct{})
	var calls int64
	fallback := newLoopbackSpawner(t)
	spawner := func(ctx context.Context) (pool.Transport, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			<-gate
			return nil, errors.New("spawn refused")
		}
		return fallback(ctx)
	}
	service, err := pool.New(
		pool.WithLimits(testLimits(1)),
		pool.WithSpawner(spawner),
		pool.WithGracePeriod(100*time.Millisecond))
	if !assert.Nil(t, err) {
		return
	}
	defer service.Shutdown(context.Background())
	ctx := context.Background()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := service.Submit(ctx, protocol.DocumentLoad, &echoInput{Text: "first"}, 2*time.Second)
		assert.NotNil(t, err, "first submission surfaces the spawn failure")
	}()

	// Queue a second submission behind the in-flight spawn, then let the
	// spawn fail: the freed slot must reach the waiter, not strand it until
	// its deadline.
	wg.Add(1)
	started := time.Now()
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		outcome, err := service.Submit(ctx, protocol.DocumentLoad, &echoInput{Text: "second"}, 2*time.Second)
		assert.Nil(t, err)
		if assert.NotNil(t, outcome) {
			assert.True(t, outcome.Success())
		}
	}()
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.True(t, time.Since(started) < time.Second, "queued submission ran as soon as capacity freed")
}

func TestService_UnknownOperation(t *testing.T) {
	service := newTestPool(t, 1)
	defer service.Shutdown(context.Background())
	_, err := service.Submit(context.Background(), protocol.Operation("image/explode"), nil, time.Minute)
	assert.True(t, errors.Is(err, model.ErrUnknownOperation))
}

func TestService_Shutdown(t *testing.T) {
	service := newTestPool(t, 2)
	outcome, err := service.Submit(context.Background(), protocol.DocumentLoad,
		&echoInput{Text: "before shutdown"}, time.Minute)
	assert.Nil(t, err)
	assert.True(t, outcome.Success())

	assert.Nil(t, service.Shutdown(context.Background()))
	_, err = service.Submit(context.Background(), protocol.DocumentLoad,
		&echoInput{Text: "after shutdown"}, time.Minute)
	assert.True(t, errors.Is(err, model.ErrPoolClosed))
	assert.Equal(t, 0, service.Stats().Killed, "clean shutdown is not a kill")
}

func TestService_ShrinkIdle(t *testing.T) {
	service := newTestPool(t, 2)
	defer service.Shutdown(context.Background())

	wg := sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.Submit(context.Background(), protocol.DocumentLoad,
				&echoInput{Text: "warm up", DelayMs: 50}, time.Minute)
		}()
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, service.Stats().Idle)

	assert.Equal(t, 2, service.ShrinkIdle(0))
	time.Sleep(100 * time.Millisecond)
	stats := service.Stats()
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 2, stats.Killed)
}

func TestService_ProgressListener(t *testing.T) {
	var count int64
	service := newTestPool(t, 1,
		pool.WithProgressListener(func(progress *protocol.Progress) {
			atomic.AddInt64(&count, 1)
		}))
	defer service.Shutdown(context.Background())

	payload, _ := json.Marshal(&image.HashInput{Data: []byte("observed")})
	outcome, err := service.Submit(context.Background(), protocol.ImageHash, json.RawMessage(payload), time.Minute)
	assert.Nil(t, err)
	assert.True(t, outcome.Success())
	assert.True(t, atomic.LoadInt64(&count) >= 1)
}
