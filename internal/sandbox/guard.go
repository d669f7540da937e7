package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataworks-ops/automator/internal/capability"
)

// Policy restricts capability invocations to a workspace directory and
// forbids deletion outright. AllowDelete and outside-workspace access are
// intentionally not configurable to true.
type Policy struct {
	WorkspaceRoot string
	AllowDelete   bool // always false; kept explicit for audit readability
	MaxCommandLen int
}

// Violation is the rejection reason returned by Validate. Violations are
// recoverable: the orchestrator records them and keeps looping.
type Violation struct {
	Capability string
	Reason     string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("sandbox rejected %s: %s", v.Capability, v.Reason)
}

// Guard is the sole enforcement point for the workspace policy. Validation
// is pure: it never touches the arguments' targets.
//
// Known limitation: for process-exec capabilities the guard enforces only
// structural limits (non-empty, bounded length). It does not parse shell
// semantics, so side effects of the command itself are outside its reach.
type Guard struct {
	root          string
	maxCommandLen int
}

// NewGuard canonicalizes the workspace root (creating it if absent) and
// returns a guard bound to it.
func NewGuard(policy Policy) (*Guard, error) {
	if policy.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root not configured")
	}
	if policy.AllowDelete {
		return nil, fmt.Errorf("delete capabilities cannot be enabled")
	}
	abs, err := filepath.Abs(policy.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	maxLen := policy.MaxCommandLen
	if maxLen <= 0 {
		maxLen = 4096
	}
	return &Guard{root: resolved, maxCommandLen: maxLen}, nil
}

// Workspace returns the canonical workspace root.
func (g *Guard) Workspace() string { return g.root }

// Validate checks one capability invocation against the policy. A nil error
// means the invocation may proceed; a *Violation carries the reason.
func (g *Guard) Validate(desc capability.Descriptor, args map[string]interface{}) error {
	if desc.SideEffect == capability.SideEffectFSDelete {
		// Static policy: no argument value can make deletion permissible.
		return &Violation{Capability: desc.Name, Reason: "delete not permitted"}
	}
	if desc.SideEffect == capability.SideEffectProcessExec {
		cmd, _ := args["command"].(string)
		if strings.TrimSpace(cmd) == "" {
			return &Violation{Capability: desc.Name, Reason: "empty command"}
		}
		if len(cmd) > g.maxCommandLen {
			return &Violation{Capability: desc.Name, Reason: fmt.Sprintf("command exceeds %d bytes", g.maxCommandLen)}
		}
	}
	for _, arg := range desc.PathArgs {
		raw, ok := args[arg].(string)
		if !ok || raw == "" {
			continue
		}
		if _, err := g.Resolve(raw); err != nil {
			return &Violation{Capability: desc.Name, Reason: fmt.Sprintf("argument %q: %v", arg, err)}
		}
	}
	return nil
}

// Resolve canonicalizes a path argument and confirms it stays inside the
// workspace. Relative paths are taken relative to the workspace root;
// absolute paths are accepted only when they already point inside it.
// Containment is checked on the symlink-resolved path, never by string
// prefix on the raw input, so `..` traversal and symlink escapes are caught.
func (g *Guard) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		return "", fmt.Errorf("path escapes workspace")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return resolved, nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of
// path and rejoins the non-existent remainder, so not-yet-created files
// still validate against their real parent directory.
func resolveExisting(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if len(tail) == 0 {
				return resolved, nil
			}
			parts := append([]string{resolved}, tail...)
			return filepath.Clean(filepath.Join(parts...)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("unresolvable path")
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}
