package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates frames on the coordinator<->worker stream.
type Kind string

const (
	// KindTask flows coordinator -> worker; exactly one outstanding per
	// worker at a time.
	KindTask Kind = "task"
	// KindProgress flows worker -> coordinator; zero or more per task,
	// advisory only.
	KindProgress Kind = "progress"
	// KindResult is terminal; exactly one per task on success.
	KindResult Kind = "result"
	// KindError is terminal; exactly one per task on failure, mutually
	// exclusive with KindResult.
	KindError Kind = "error"
)

// Task dispatches a single operation to a worker.
type Task struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Progress reports advisory execution progress. Percent is monotonically
// non-decreasing by convention; the coordinator does not enforce it.
type Progress struct {
	TaskID  string  `json:"taskId"`
	Message string  `json:"message,omitempty"`
	Percent float64 `json:"percent"`
}

// Result carries a task's output; always the last frame for its task id.
type Result struct {
	TaskID string          `json:"taskId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Error carries a task's failure; always the last frame for its task id.
type Error struct {
	TaskID  string `json:"taskId"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Frame is the wire envelope: exactly one of the payload fields is set,
// selected by Kind.
type Frame struct {
	Kind     Kind      `json:"kind"`
	Task     *Task     `json:"task,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Error    *Error    `json:"error,omitempty"`
}

// Validate checks that the frame's kind and payload agree. A frame failing
// validation is treated as protocol corruption and is fatal to the worker
// connection that produced it.
func (f *Frame) Validate() error {
	switch f.Kind {
	case KindTask:
		if f.Task == nil {
			return fmt.Errorf("task frame missing payload")
		}
		if !f.Task.Operation.Known() {
			return fmt.Errorf("unknown operation %q", f.Task.Operation)
		}
	case KindProgress:
		if f.Progress == nil {
			return fmt.Errorf("progress frame missing payload")
		}
	case KindResult:
		if f.Result == nil {
			return fmt.Errorf("result frame missing payload")
		}
	case KindError:
		if f.Error == nil {
			return fmt.Errorf("error frame missing payload")
		}
	default:
		return fmt.Errorf("unknown frame kind %q", f.Kind)
	}
	return nil
}

// TaskID returns the task id the frame refers to, regardless of kind.
func (f *Frame) TaskID() string {
	switch f.Kind {
	case KindTask:
		return f.Task.ID
	case KindProgress:
		return f.Progress.TaskID
	case KindResult:
		return f.Result.TaskID
	case KindError:
		return f.Error.TaskID
	}
	return ""
}

// Terminal reports whether the frame ends its task.
func (f *Frame) Terminal() bool {
	return f.Kind == KindResult || f.Kind == KindError
}
