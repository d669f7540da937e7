package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/sandbox"
)

func newRegistry(t *testing.T, timeout time.Duration) (*capability.Registry, *sandbox.Guard) {
	t.Helper()
	guard, err := sandbox.NewGuard(sandbox.Policy{WorkspaceRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	r, err := capability.NewRegistry(Descriptor(guard, timeout))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r, guard
}

func TestRunCommandOutput(t *testing.T) {
	r, _ := newRegistry(t, 0)

	res := r.Invoke(context.Background(), "run_command", map[string]interface{}{"command": "echo hello"})
	if !res.Success || res.Output != "hello" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunCommandWorkspaceCwd(t *testing.T) {
	r, guard := newRegistry(t, 0)
	if err := os.WriteFile(filepath.Join(guard.Workspace(), "marker.txt"), nil, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := r.Invoke(context.Background(), "run_command", map[string]interface{}{"command": "ls"})
	if !res.Success || !strings.Contains(res.Output, "marker.txt") {
		t.Fatalf("expected workspace listing, got %+v", res)
	}
}

func TestRunCommandFailureIncludesOutput(t *testing.T) {
	r, _ := newRegistry(t, 0)

	res := r.Invoke(context.Background(), "run_command", map[string]interface{}{"command": "echo oops >&2; exit 3"})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.Error, "oops") {
		t.Fatalf("expected stderr in error, got %q", res.Error)
	}
}

func TestRunCommandEmpty(t *testing.T) {
	r, _ := newRegistry(t, 0)

	res := r.Invoke(context.Background(), "run_command", map[string]interface{}{"command": "   "})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	r, _ := newRegistry(t, 50*time.Millisecond)

	start := time.Now()
	res := r.Invoke(context.Background(), "run_command", map[string]interface{}{"command": "sleep 5"})
	if res.Success {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not enforced promptly")
	}
}
