package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	core "github.com/dataworks-ops/automator/internal/agent/core"
	"github.com/dataworks-ops/automator/internal/conversation"
)

// Store is the Postgres run archive. Runs are written after the fact for
// audit; the orchestrator never reads from it on the hot path.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// RunRecord is one archived run row.
type RunRecord struct {
	TaskID     string    `json:"task_id"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	Answer     string    `json:"answer"`
	Iterations int       `json:"iterations"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveRun archives a terminal run report together with its full turn log.
func (s *Store) SaveRun(ctx context.Context, report core.RunReport, task core.Task, turns []conversation.Turn) error {
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO runs (task_id, session_id, description, status, answer, iterations, elapsed_ms, error, turns)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (task_id) DO NOTHING`,
		report.TaskID, report.SessionID, task.Description, string(report.Status),
		report.Answer, report.Iterations, report.Elapsed.Milliseconds(), report.Error, turnsJSON)
	return err
}

// ListRuns returns the most recent archived runs, newest first.
func (s *Store) ListRuns(ctx context.Context, sessionID string, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT task_id, session_id, status, answer, iterations, elapsed_ms, error, created_at
		FROM runs ORDER BY created_at DESC LIMIT $1`
	args := []interface{}{limit}
	if sessionID != "" {
		query = `SELECT task_id, session_id, status, answer, iterations, elapsed_ms, error, created_at
			FROM runs WHERE session_id=$2 ORDER BY created_at DESC LIMIT $1`
		args = append(args, sessionID)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var errText sql.NullString
		if err := rows.Scan(&r.TaskID, &r.SessionID, &r.Status, &r.Answer, &r.Iterations, &r.ElapsedMS, &errText, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun fetches one archived run and its turn log.
func (s *Store) GetRun(ctx context.Context, taskID string) (RunRecord, []conversation.Turn, error) {
	var r RunRecord
	var errText sql.NullString
	var turnsJSON []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT task_id, session_id, status, answer, iterations, elapsed_ms, error, turns, created_at
		 FROM runs WHERE task_id=$1`, taskID).
		Scan(&r.TaskID, &r.SessionID, &r.Status, &r.Answer, &r.Iterations, &r.ElapsedMS, &errText, &turnsJSON, &r.CreatedAt)
	if err != nil {
		return RunRecord{}, nil, err
	}
	r.Error = errText.String
	var turns []conversation.Turn
	if len(turnsJSON) > 0 {
		if err := json.Unmarshal(turnsJSON, &turns); err != nil {
			return RunRecord{}, nil, fmt.Errorf("unmarshal turns: %w", err)
		}
	}
	return r, turns, nil
}
