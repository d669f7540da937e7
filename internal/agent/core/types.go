package core

import (
	"context"
	"time"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/conversation"
)

// Task is one accepted task description. Immutable once accepted; exactly
// one orchestration run per Task.
type Task struct {
	ID          string
	Description string
	SessionID   string
	CreatedAt   time.Time
}

// Decision is the decision function's verdict for one iteration: either
// invoke a capability or finish with an answer.
type Decision struct {
	Capability string
	Args       map[string]interface{}
	Final      bool
	Answer     string
}

// Decider is the external decision function. Implementations inspect the
// bounded conversation window plus the capability descriptors and propose
// the next step. Malformed model output surfaces as ErrMalformedDecision.
type Decider interface {
	Decide(ctx context.Context, task Task, window []conversation.Turn, capabilities []capability.Descriptor) (Decision, error)
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusExhausted RunStatus = "exhausted"
	StatusFatal     RunStatus = "fatal"
)

// RunState is per-run bookkeeping, owned exclusively by the orchestrator
// and discarded on any terminal transition.
type RunState struct {
	Iterations   int
	IterationCap int
	Deadline     time.Time
	Terminal     bool
}

func (s *RunState) exhausted(now time.Time) bool {
	return s.Iterations >= s.IterationCap || (!s.Deadline.IsZero() && now.After(s.Deadline))
}

// RunReport is the terminal state formatted for the response contract. On
// Exhausted it describes what was attempted rather than raising an error.
type RunReport struct {
	TaskID     string        `json:"task_id"`
	SessionID  string        `json:"session_id"`
	Status     RunStatus     `json:"status"`
	Answer     string        `json:"answer,omitempty"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// Archive receives completed runs for audit. Optional; orchestration never
// depends on it.
type Archive interface {
	SaveRun(ctx context.Context, report RunReport, task Task, turns []conversation.Turn) error
}
