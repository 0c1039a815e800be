package model

import (
	"encoding/json"
	"time"

	"github.com/viant/offload/internal/clock"
	"github.com/viant/offload/internal/idgen"
	"github.com/viant/offload/protocol"
)

// Task is a unit of dispatched work. It is owned by the pool manager from
// submission until a terminal outcome is produced and is never mutated by a
// worker.
type Task struct {
	ID          string             `json:"id"`
	Operation   protocol.Operation `json:"operation"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	SubmittedAt time.Time          `json:"submittedAt"`
	Timeout     time.Duration      `json:"timeout"`
}

// NewTask creates a task with a generated identifier. Callers that need a
// stable identity across retries can set ID before dispatch instead.
func NewTask(operation protocol.Operation, payload json.RawMessage, timeout time.Duration) *Task {
	return &Task{
		ID:          idgen.New(),
		Operation:   operation,
		Payload:     payload,
		SubmittedAt: clock.Now(),
		Timeout:     timeout,
	}
}
