package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"reflect"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/viant/offload/protocol"
	"github.com/viant/structology/conv"
)

// Runtime executes one task at a time against the registered action
// services, reading task frames from its input stream and writing progress
// and terminal frames to its output stream. In a real worker process the
// streams are stdin/stdout; tests run the runtime over in-memory pipes.
type Runtime struct {
	registry  *Registry
	tracker   *TempTracker
	converter *conv.Converter
	decoder   *protocol.Decoder
	encoder   *protocol.Encoder
	grace     time.Duration
	signals   bool
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithStreams sets the frame input and output streams.
func WithStreams(r io.Reader, w io.Writer) Option {
	return func(rt *Runtime) {
		rt.decoder = protocol.NewDecoder(r)
		rt.encoder = protocol.NewEncoder(w)
	}
}

// WithTracker sets the temp-resource tracker.
func WithTracker(tracker *TempTracker) Option {
	return func(rt *Runtime) { rt.tracker = tracker }
}

// WithGracePeriod bounds how long a graceful shutdown waits for the in-flight
// task before abandoning it.
func WithGracePeriod(grace time.Duration) Option {
	return func(rt *Runtime) { rt.grace = grace }
}

// WithOSSignals enables SIGTERM handling: on receipt the runtime stops
// accepting tasks, lets the current one finish within the grace period,
// sweeps tracked temp resources and returns. SIGKILL is not interceptable, so
// the forced path performs no sweep by construction.
func WithOSSignals() Option {
	return func(rt *Runtime) { rt.signals = true }
}

// New creates a worker runtime serving the supplied registry.
func New(registry *Registry, options ...Option) *Runtime {
	options2 := conv.DefaultOptions()
	options2.ClonePointerData = true
	options2.IgnoreUnmapped = true
	rt := &Runtime{
		registry:  registry,
		converter: conv.NewConverter(options2),
		grace:     5 * time.Second,
	}
	for _, option := range options {
		option(rt)
	}
	if rt.decoder == nil {
		rt.decoder = protocol.NewDecoder(os.Stdin)
		rt.encoder = protocol.NewEncoder(os.Stdout)
	}
	if rt.tracker == nil {
		rt.tracker = NewTempTracker("")
	}
	return rt
}

// Tracker returns the runtime's temp-resource tracker.
func (r *Runtime) Tracker() *TempTracker { return r.tracker }

// Run processes task frames until the stream closes, the context is
// cancelled or a graceful-termination signal arrives. Handler failures are
// reported as error frames and never crash the process; only protocol-level
// corruption is fatal.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	if r.signals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				log.Printf("worker: received %v, shutting down", sig)
				close(stop)
				// Abandon the in-flight task once the grace period elapses.
				time.AfterFunc(r.grace, cancel)
			case <-ctx.Done():
			}
		}()
	}

	frames := make(chan *protocol.Frame)
	decodeErr := make(chan error, 1)
	go func() {
		for {
			frame, err := r.decoder.Decode()
			if err != nil {
				decodeErr <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-stop:
			r.sweep()
			return nil
		case <-ctx.Done():
			r.sweep()
			return ctx.Err()
		case err := <-decodeErr:
			r.sweep()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case frame := <-frames:
			if frame.Kind != protocol.KindTask {
				r.sweep()
				return fmt.Errorf("unexpected %v frame from coordinator", frame.Kind)
			}
			if err := r.execute(ctx, frame.Task); err != nil {
				r.sweep()
				return err
			}
		}
	}
}

func (r *Runtime) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.grace)
	defer cancel()
	if removed, err := r.tracker.Sweep(ctx); err != nil {
		log.Printf("worker: temp sweep removed %d artifact(s) with error: %v", removed, err)
	}
}

// execute runs a single task, emitting exactly one terminal frame.
func (r *Runtime) execute(ctx context.Context, task *protocol.Task) error {
	output, err := r.dispatch(ctx, task)
	if err != nil {
		return r.encoder.Encode(&protocol.Frame{
			Kind:  protocol.KindError,
			Error: &protocol.Error{TaskID: task.ID, Message: err.Error()},
		})
	}
	data, err := json.Marshal(output)
	if err != nil {
		return r.encoder.Encode(&protocol.Frame{
			Kind:  protocol.KindError,
			Error: &protocol.Error{TaskID: task.ID, Message: fmt.Sprintf("failed to encode output: %v", err)},
		})
	}
	return r.encoder.Encode(&protocol.Frame{
		Kind:   protocol.KindResult,
		Result: &protocol.Result{TaskID: task.ID, Data: data},
	})
}

// dispatch resolves the operation, builds typed input/output values and
// invokes the handler with panic recovery.
func (r *Runtime) dispatch(ctx context.Context, task *protocol.Task) (output interface{}, err error) {
	executable, signature, err := r.registry.Lookup(task.Operation)
	if err != nil {
		return nil, err
	}
	input, err := r.typedInput(signature.Input, task.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload for %v: %w", task.Operation, err)
	}
	output = newInstancePtr(signature.Output)

	execCtx := WithReporter(ctx, func(message string, percent float64) {
		frame := &protocol.Frame{
			Kind:     protocol.KindProgress,
			Progress: &protocol.Progress{TaskID: task.ID, Message: message, Percent: percent},
		}
		if encodeErr := r.encoder.Encode(frame); encodeErr != nil {
			log.Printf("worker: failed to emit progress: %v", encodeErr)
		}
	})

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v\n%s", rec, debug.Stack())
		}
	}()
	if err = executable(execCtx, input, output); err != nil {
		return nil, err
	}
	return output, nil
}

// typedInput decodes the raw payload into the handler's input type. JSON
// decoding covers the wire path; the structology converter covers generic
// values that callers hand over in-process (maps produced by UI layers).
func (r *Runtime) typedInput(inputType reflect.Type, payload json.RawMessage) (interface{}, error) {
	instance := newInstancePtr(inputType)
	if len(payload) == 0 {
		return instance, nil
	}
	if err := json.Unmarshal(payload, instance); err == nil {
		return instance, nil
	}
	var generic interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, err
	}
	if err := r.converter.Convert(generic, instance); err != nil {
		return nil, err
	}
	return instance, nil
}
