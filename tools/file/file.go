package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/sandbox"
)

const maxReadBytes = 1 << 20

// Descriptors returns the file I/O capabilities. delete_file is registered
// with the fs-delete class so the guard's unconditional rejection applies
// end to end; it has no handler because it can never run.
func Descriptors(guard *sandbox.Guard) []capability.Descriptor {
	return []capability.Descriptor{
		{
			Name:        "read_file",
			Description: "Read the contents of a file inside the workspace.",
			SideEffect:  capability.SideEffectReadOnly,
			PathArgs:    []string{"path"},
			InputSchema: capability.ObjectSchema(map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "workspace-relative file path"},
			}, "path"),
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				path, _ := args["path"].(string)
				resolved, err := guard.Resolve(path)
				if err != nil {
					return "", err
				}
				data, err := os.ReadFile(resolved)
				if err != nil {
					return "", fmt.Errorf("read %s: %w", path, err)
				}
				if len(data) > maxReadBytes {
					data = data[:maxReadBytes]
				}
				return string(data), nil
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file inside the workspace, creating parent directories as needed.",
			SideEffect:  capability.SideEffectFSWrite,
			PathArgs:    []string{"path"},
			InputSchema: capability.ObjectSchema(map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "description": "workspace-relative file path"},
				"content": map[string]interface{}{"type": "string"},
			}, "path", "content"),
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				path, _ := args["path"].(string)
				content, _ := args["content"].(string)
				resolved, err := guard.Resolve(path)
				if err != nil {
					return "", err
				}
				if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
					return "", fmt.Errorf("write %s: %w", path, err)
				}
				if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
					return "", fmt.Errorf("write %s: %w", path, err)
				}
				return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
			},
		},
		{
			Name:        "list_files",
			Description: "List files under a workspace directory.",
			SideEffect:  capability.SideEffectReadOnly,
			PathArgs:    []string{"path"},
			InputSchema: capability.ObjectSchema(map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "workspace-relative directory; empty for the workspace root"},
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				path, _ := args["path"].(string)
				if path == "" {
					path = "."
				}
				resolved, err := guard.Resolve(path)
				if err != nil {
					return "", err
				}
				entries, err := os.ReadDir(resolved)
				if err != nil {
					return "", fmt.Errorf("list %s: %w", path, err)
				}
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					name := e.Name()
					if e.IsDir() {
						name += "/"
					}
					names = append(names, name)
				}
				sort.Strings(names)
				if len(names) == 0 {
					return "(empty)", nil
				}
				return strings.Join(names, "\n"), nil
			},
		},
		{
			Name:        "delete_file",
			Description: "Delete a file. Always rejected by policy.",
			SideEffect:  capability.SideEffectFSDelete,
			PathArgs:    []string{"path"},
			InputSchema: capability.ObjectSchema(map[string]interface{}{
				"path": map[string]interface{}{"type": "string"},
			}, "path"),
		},
	}
}
