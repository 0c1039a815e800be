package pool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/viant/offload/protocol"
)

// Transport is a byte-stream connection to a single worker. The production
// implementation wraps a spawned OS process; tests substitute an in-process
// loopback running the worker runtime over pipes.
type Transport interface {
	// Send writes a frame to the worker.
	Send(frame *protocol.Frame) error
	// Receive blocks for the next frame from the worker. It returns an
	// error once the worker dies or corrupts the stream.
	Receive() (*protocol.Frame, error)
	// Signal delivers the graceful-termination signal.
	Signal() error
	// Kill terminates the worker immediately.
	Kill() error
	// PID returns the worker's OS process id, or 0 when not process-backed.
	PID() int
	// Close releases coordinator-side resources.
	Close() error
}

// Spawner creates a new worker transport.
type Spawner func(ctx context.Context) (Transport, error)

// NewProcessSpawner returns a Spawner that launches the worker binary with
// the given arguments, speaking the protocol over its stdin/stdout. Worker
// stderr is inherited so crash diagnostics surface in the coordinator's
// output.
func NewProcessSpawner(binary string, args ...string) Spawner {
	return func(ctx context.Context) (Transport, error) {
		cmd := exec.Command(binary, args...)
		cmd.Stderr = os.Stderr
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err = cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start worker %v: %w", binary, err)
		}
		transport := &processTransport{
			cmd:     cmd,
			stdin:   stdin,
			encoder: protocol.NewEncoder(stdin),
			decoder: protocol.NewDecoder(stdout),
		}
		// Reap the child so a crashed worker never lingers as a zombie.
		go func() {
			_ = cmd.Wait()
		}()
		return transport, nil
	}
}

type processTransport struct {
	cmd     *exec.Cmd
	stdin   interface{ Close() error }
	encoder *protocol.Encoder
	decoder *protocol.Decoder
	mu      sync.Mutex
	closed  bool
}

func (t *processTransport) Send(frame *protocol.Frame) error {
	return t.encoder.Encode(frame)
}

func (t *processTransport) Receive() (*protocol.Frame, error) {
	return t.decoder.Decode()
}

func (t *processTransport) Signal() error {
	if t.cmd.Process == nil {
		return fmt.Errorf("worker not started")
	}
	return t.cmd.Process.Signal(syscall.SIGTERM)
}

func (t *processTransport) Kill() error {
	if t.cmd.Process == nil {
		return fmt.Errorf("worker not started")
	}
	return t.cmd.Process.Kill()
}

func (t *processTransport) PID() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

func (t *processTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.stdin.Close()
}
