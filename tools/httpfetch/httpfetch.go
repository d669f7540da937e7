package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/sandbox"
)

// Descriptor returns the http_fetch capability: GET a URL and either return
// the body or save it to a workspace file.
func Descriptor(guard *sandbox.Guard, maxBytes int64) capability.Descriptor {
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	return capability.Descriptor{
		Name:        "http_fetch",
		Description: "Fetch a URL with HTTP GET. Returns the body, or saves it to save_to inside the workspace.",
		SideEffect:  capability.SideEffectNetwork,
		PathArgs:    []string{"save_to"},
		InputSchema: capability.ObjectSchema(map[string]interface{}{
			"url":     map[string]interface{}{"type": "string"},
			"save_to": map[string]interface{}{"type": "string", "description": "optional workspace-relative path to save the body"},
		}, "url"),
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			rawURL, _ := args["url"].(string)
			if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
				return "", fmt.Errorf("url must be http or https")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return "", fmt.Errorf("request: %w", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetch: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
			if err != nil {
				return "", fmt.Errorf("read body: %w", err)
			}
			if resp.StatusCode >= 400 {
				return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 500))
			}

			if saveTo, _ := args["save_to"].(string); saveTo != "" {
				resolved, err := guard.Resolve(saveTo)
				if err != nil {
					return "", err
				}
				if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
					return "", err
				}
				if err := os.WriteFile(resolved, body, 0o644); err != nil {
					return "", err
				}
				return fmt.Sprintf("saved %d bytes from %s to %s (status %d)", len(body), rawURL, saveTo, resp.StatusCode), nil
			}
			return truncate(string(body), 20000), nil
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…(truncated)"
}
