package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/sandbox"
)

// Descriptor returns the run_command capability. This is the explicitly
// high-risk capability: the guard bounds its path arguments and command
// length but does not inspect command semantics.
func Descriptor(guard *sandbox.Guard, timeout time.Duration) capability.Descriptor {
	return capability.Descriptor{
		Name:        "run_command",
		Description: "Run a shell command with the workspace as working directory. Returns combined stdout and stderr.",
		SideEffect:  capability.SideEffectProcessExec,
		Timeout:     timeout,
		InputSchema: capability.ObjectSchema(map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "shell command to execute"},
		}, "command"),
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			command, _ := args["command"].(string)
			if strings.TrimSpace(command) == "" {
				return "", fmt.Errorf("command is required")
			}

			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Dir = guard.Workspace()
			var buf bytes.Buffer
			cmd.Stdout = &buf
			cmd.Stderr = &buf

			err := cmd.Run()
			output := strings.TrimSpace(buf.String())
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				if output == "" {
					return "", fmt.Errorf("command failed: %v", err)
				}
				return "", fmt.Errorf("command failed: %v; output: %s", err, truncate(output, 2000))
			}
			if output == "" {
				output = "(no output)"
			}
			return output, nil
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
