package sqlquery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/sandbox"
)

const maxRows = 200

// Descriptor returns the sql_query capability: read-only SELECT queries
// against SQLite database files inside the workspace.
func Descriptor(guard *sandbox.Guard) capability.Descriptor {
	return capability.Descriptor{
		Name:        "sql_query",
		Description: "Run a read-only SQL SELECT against a SQLite database file inside the workspace. Returns rows as JSON.",
		SideEffect:  capability.SideEffectReadOnly,
		PathArgs:    []string{"database"},
		InputSchema: capability.ObjectSchema(map[string]interface{}{
			"database": map[string]interface{}{"type": "string", "description": "workspace-relative path to a .db file"},
			"query":    map[string]interface{}{"type": "string", "description": "a single SELECT statement"},
		}, "database", "query"),
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			database, _ := args["database"].(string)
			query, _ := args["query"].(string)
			if err := checkReadOnly(query); err != nil {
				return "", err
			}
			resolved, err := guard.Resolve(database)
			if err != nil {
				return "", err
			}

			db, err := sql.Open("sqlite", "file:"+resolved+"?mode=ro")
			if err != nil {
				return "", fmt.Errorf("open %s: %w", database, err)
			}
			defer db.Close()

			rows, err := db.QueryContext(ctx, query)
			if err != nil {
				return "", fmt.Errorf("query: %w", err)
			}
			defer rows.Close()

			cols, err := rows.Columns()
			if err != nil {
				return "", err
			}
			var out []map[string]interface{}
			for rows.Next() {
				if len(out) >= maxRows {
					break
				}
				vals := make([]interface{}, len(cols))
				ptrs := make([]interface{}, len(cols))
				for i := range vals {
					ptrs[i] = &vals[i]
				}
				if err := rows.Scan(ptrs...); err != nil {
					return "", err
				}
				row := make(map[string]interface{}, len(cols))
				for i, col := range cols {
					if b, ok := vals[i].([]byte); ok {
						row[col] = string(b)
					} else {
						row[col] = vals[i]
					}
				}
				out = append(out, row)
			}
			if err := rows.Err(); err != nil {
				return "", err
			}
			rendered, err := json.Marshal(out)
			if err != nil {
				return "", err
			}
			return string(rendered), nil
		},
	}
}

// checkReadOnly rejects anything but a single SELECT (or WITH ... SELECT).
// Statement-level guard only; the database is additionally opened read-only.
func checkReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("query is required")
	}
	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return fmt.Errorf("only a single statement is allowed")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	return nil
}
