package model

import (
	"encoding/json"
	"time"
)

// OutcomeKind discriminates the terminal state of a submitted task.
type OutcomeKind string

const (
	// OutcomeResult indicates the task completed and Data carries its output.
	OutcomeResult OutcomeKind = "result"
	// OutcomeError indicates the task failed; Reason and Message describe why.
	OutcomeError OutcomeKind = "error"
	// OutcomeTimeout indicates the task exceeded its deadline and the worker
	// was removed. The pool never retries on the caller's behalf.
	OutcomeTimeout OutcomeKind = "timeout"
)

// Failure reasons carried by error outcomes. Callers use these to decide
// whether a retry makes sense for their operation.
const (
	ReasonHandler            = "handler"
	ReasonResourceExhaustion = "resource-exhaustion"
	ReasonProtocolViolation  = "protocol-violation"
	ReasonWorkerDied         = "worker-died"
)

// Outcome is the terminal result of a Submit call. Exactly one outcome is
// produced per task.
type Outcome struct {
	TaskID   string          `json:"taskId"`
	Kind     OutcomeKind     `json:"kind"`
	Data     json.RawMessage `json:"data,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
	WorkerID string          `json:"workerId,omitempty"`
}

// Success reports whether the task produced a result.
func (o *Outcome) Success() bool {
	return o != nil && o.Kind == OutcomeResult
}

// Unmarshal decodes the outcome data into the supplied value.
func (o *Outcome) Unmarshal(v interface{}) error {
	return json.Unmarshal(o.Data, v)
}

// Stats is a read-only snapshot of pool occupancy for diagnostic display.
type Stats struct {
	Active  int `json:"active"`
	Idle    int `json:"idle"`
	Queued  int `json:"queued"`
	Spawned int `json:"spawned"`
	Killed  int `json:"killed"`
}
