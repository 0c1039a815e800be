package pool

import (
	"sync"
	"time"

	"github.com/viant/offload/internal/clock"
	"github.com/viant/offload/model"
	"github.com/viant/offload/protocol"
)

// State of a pooled worker. The manager exclusively owns these transitions;
// the worker process only reports execution state via protocol frames.
type State string

const (
	StateIdle        State = "idle"
	StateBusy        State = "busy"
	StateTerminating State = "terminating"
	StateDead        State = "dead"
)

// handle is the manager-side record of one worker process.
type handle struct {
	id            string
	transport     Transport
	memoryCeiling uint64
	spawnedAt     time.Time

	mu             sync.Mutex
	state          State
	taskID         string
	lastActivityAt time.Time
	// pending resolves the in-flight task; nil when idle.
	pending chan *model.Outcome
}

func (h *handle) getState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handle) setState(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

// assign marks the handle busy with the given task and returns the channel
// its terminal outcome will arrive on. Assigning a busy worker is a protocol
// invariant violation surfaced as ErrWorkerBusy.
func (h *handle) assign(taskID string) (chan *model.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateIdle {
		return nil, model.ErrWorkerBusy
	}
	h.state = StateBusy
	h.taskID = taskID
	h.lastActivityAt = clock.Now()
	h.pending = make(chan *model.Outcome, 1)
	return h.pending, nil
}

// resolve delivers the terminal outcome for the in-flight task, if any, and
// clears the assignment. It is idempotent: the first terminal event wins,
// later ones (e.g. a timeout racing a result) are dropped.
func (h *handle) resolve(outcome *model.Outcome) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || (outcome.TaskID != "" && outcome.TaskID != h.taskID) {
		return false
	}
	outcome.WorkerID = h.id
	h.pending <- outcome
	h.pending = nil
	h.taskID = ""
	h.lastActivityAt = clock.Now()
	return true
}

// touch records worker activity (progress frames) for idle accounting.
func (h *handle) touch() {
	h.mu.Lock()
	h.lastActivityAt = clock.Now()
	h.mu.Unlock()
}

// currentTask returns the in-flight task id, if any.
func (h *handle) currentTask() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.taskID
}

// dispatch sends the task frame to the worker.
func (h *handle) dispatch(task *protocol.Task) error {
	return h.transport.Send(&protocol.Frame{Kind: protocol.KindTask, Task: task})
}
