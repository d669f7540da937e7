package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SideEffect classifies what a capability may do to the outside world. The
// sandbox guard keys its policy off this class.
type SideEffect string

const (
	SideEffectReadOnly    SideEffect = "read-only"
	SideEffectFSWrite     SideEffect = "fs-write"
	SideEffectFSDelete    SideEffect = "fs-delete"
	SideEffectNetwork     SideEffect = "network"
	SideEffectProcessExec SideEffect = "process-exec"
)

// Handler is a synchronous capability implementation. It must honour ctx
// cancellation; the registry abandons handlers that outlive their timeout.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Descriptor declares a capability: its schema, side-effect class and
// invocation function. Descriptors are immutable after registration.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	SideEffect  SideEffect
	Timeout     time.Duration
	// PathArgs names the arguments the sandbox guard must resolve and
	// confine to the workspace root.
	PathArgs []string
	Handler  Handler
}

// Result is the uniform outcome of one capability invocation. Handler
// failures never escape past this type.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Registry maps capability names to descriptors. Built once at startup,
// read-only afterwards, safe for concurrent use.
type Registry struct {
	caps map[string]Descriptor
}

// NewRegistry validates descriptors and builds the dispatch table.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{caps: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("capability with empty name")
		}
		if _, ok := r.caps[d.Name]; ok {
			return nil, fmt.Errorf("duplicate capability: %s", d.Name)
		}
		if d.Handler == nil && d.SideEffect != SideEffectFSDelete {
			return nil, fmt.Errorf("capability %s has no handler", d.Name)
		}
		if d.Timeout <= 0 {
			d.Timeout = defaultTimeout(d.SideEffect)
		}
		r.caps[d.Name] = d
	}
	return r, nil
}

func defaultTimeout(se SideEffect) time.Duration {
	switch se {
	case SideEffectProcessExec:
		return 300 * time.Second
	default:
		return 30 * time.Second
	}
}

// Get returns the descriptor for an exact name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.caps[name]
	return d, ok
}

// Names returns registered capability names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.caps))
	for name := range r.caps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptors returns all descriptors in name order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.caps))
	for _, name := range r.Names() {
		out = append(out, r.caps[name])
	}
	return out
}

// Invoke runs a capability by exact name, bounded by its timeout. Unknown
// names, handler errors, panics and timeouts all come back as a Result;
// nothing raises past this boundary. Retry policy belongs to the caller.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) Result {
	d, ok := r.caps[name]
	if !ok {
		return Result{Success: false, Error: "unknown capability"}
	}
	if d.Handler == nil {
		return Result{Success: false, Error: fmt.Sprintf("capability %s is not invokable", name)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- outcome{err: fmt.Errorf("capability panic: %v", rec)}
			}
		}()
		out, err := d.Handler(ctx, args)
		ch <- outcome{output: out, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return Result{Success: false, Error: res.err.Error()}
		}
		return Result{Success: true, Output: res.output}
	case <-ctx.Done():
		// In-flight handler is abandoned; its partial side effects are not
		// rolled back. Capabilities are not transactional.
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Success: false, Error: "timeout"}
		}
		return Result{Success: false, Error: ctx.Err().Error()}
	}
}

// Describe renders the registry for inclusion in a decision prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, d := range r.Descriptors() {
		schema, _ := json.Marshal(d.InputSchema)
		fmt.Fprintf(&b, "- %s (%s): %s\n  arguments: %s\n", d.Name, d.SideEffect, d.Description, schema)
	}
	return b.String()
}

// ObjectSchema is a small helper for declaring argument schemas.
func ObjectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
