package conversation

import (
	"context"
	"time"
)

// Kind discriminates the turn variants recorded during a run.
type Kind string

const (
	KindHuman       Kind = "human"
	KindDecision    Kind = "decision"
	KindObservation Kind = "observation"
	KindFinal       Kind = "final"
)

// Turn is one entry in a session's conversation log.
type Turn struct {
	Kind       Kind                   `json:"kind"`
	Text       string                 `json:"text,omitempty"`
	Capability string                 `json:"capability,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Result     string                 `json:"result,omitempty"`
	Err        string                 `json:"error,omitempty"`
	At         time.Time              `json:"at"`
}

func Human(text string) Turn {
	return Turn{Kind: KindHuman, Text: text, At: time.Now()}
}

func Decision(capability string, args map[string]interface{}) Turn {
	return Turn{Kind: KindDecision, Capability: capability, Args: args, At: time.Now()}
}

func Observation(capability, result, errMsg string) Turn {
	return Turn{Kind: KindObservation, Capability: capability, Result: result, Err: errMsg, At: time.Now()}
}

func Final(answer string) Turn {
	return Turn{Kind: KindFinal, Text: answer, At: time.Now()}
}

// Log is the ordered, append-only record of one session's turns. Each
// session owns exactly one Log; a Log is never shared across concurrently
// running tasks and is cleared only via Reset.
type Log interface {
	Append(ctx context.Context, t Turn) error
	// Window returns the last n turns in order.
	Window(ctx context.Context, n int) ([]Turn, error)
	// Full returns the complete ordered history.
	Full(ctx context.Context) ([]Turn, error)
	Reset(ctx context.Context) error
}

// Store hands out per-session logs. Implementations: in-memory (default)
// and Redis-backed.
type Store interface {
	Session(ctx context.Context, id string) (Log, error)
}
