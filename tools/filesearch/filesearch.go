package filesearch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/sandbox"
)

const (
	maxIndexedFiles = 2000
	maxFileBytes    = 1 << 20
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".log": true,
	".json": true, ".yaml": true, ".yml": true, ".html": true,
}

type indexedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Descriptor returns the search_files capability: full-text search over
// workspace text files. The index is built per invocation so results always
// reflect files written earlier in the same run.
func Descriptor(guard *sandbox.Guard, maxHits int) capability.Descriptor {
	if maxHits <= 0 {
		maxHits = 10
	}
	return capability.Descriptor{
		Name:        "search_files",
		Description: "Full-text search across text files in the workspace. Returns matching file paths ranked by relevance.",
		SideEffect:  capability.SideEffectReadOnly,
		InputSchema: capability.ObjectSchema(map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		}, "query"),
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query is required")
			}

			index, err := buildIndex(guard.Workspace())
			if err != nil {
				return "", err
			}
			defer index.Close()

			req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), maxHits, 0, false)
			res, err := index.SearchInContext(ctx, req)
			if err != nil {
				return "", fmt.Errorf("search: %w", err)
			}
			if res.Total == 0 {
				return "no matches", nil
			}
			var b strings.Builder
			for _, hit := range res.Hits {
				fmt.Fprintf(&b, "%s (score %.3f)\n", hit.ID, hit.Score)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func buildIndex(root string) (bleve.Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if count >= maxIndexedFiles {
			return fs.SkipAll
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		count++
		return index.Index(rel, indexedFile{Path: rel, Content: string(data)})
	})
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return index, nil
}
