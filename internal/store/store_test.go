package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	core "github.com/dataworks-ops/automator/internal/agent/core"
	"github.com/dataworks-ops/automator/internal/conversation"
)

func TestSaveRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	task := core.Task{ID: "task-1", Description: "count the csv rows", SessionID: "default"}
	report := core.RunReport{
		TaskID:     "task-1",
		SessionID:  "default",
		Status:     core.StatusSuccess,
		Answer:     "42 rows",
		Iterations: 3,
		Elapsed:    1500 * time.Millisecond,
	}
	turns := []conversation.Turn{
		conversation.Human("count the csv rows"),
		conversation.Final("42 rows"),
	}

	query := regexp.QuoteMeta(`INSERT INTO runs (task_id, session_id, description, status, answer, iterations, elapsed_ms, error, turns)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (task_id) DO NOTHING`)
	mock.ExpectExec(query).
		WithArgs("task-1", "default", task.Description, "success", "42 rows", 3, int64(1500), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveRun(context.Background(), report, task, turns); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRunsFiltersBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	rows := sqlmock.NewRows([]string{"task_id", "session_id", "status", "answer", "iterations", "elapsed_ms", "error", "created_at"}).
		AddRow("task-2", "analytics", "exhausted", "iteration budget exhausted", 20, int64(90000), nil, now).
		AddRow("task-1", "analytics", "success", "done", 2, int64(800), nil, now.Add(-time.Minute))

	query := regexp.QuoteMeta(`SELECT task_id, session_id, status, answer, iterations, elapsed_ms, error, created_at
			FROM runs WHERE session_id=$2 ORDER BY created_at DESC LIMIT $1`)
	mock.ExpectQuery(query).WithArgs(50, "analytics").WillReturnRows(rows)

	out, err := st.ListRuns(context.Background(), "analytics", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(out))
	}
	if out[0].TaskID != "task-2" || out[0].Status != "exhausted" {
		t.Fatalf("unexpected first run: %+v", out[0])
	}
	if out[1].Error != "" {
		t.Fatalf("expected empty error, got %q", out[1].Error)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunDecodesTurns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	turnsJSON := []byte(`[{"kind":"human","text":"hi","at":"2026-01-02T15:04:05Z"},{"kind":"final","text":"done","at":"2026-01-02T15:04:07Z"}]`)
	rows := sqlmock.NewRows([]string{"task_id", "session_id", "status", "answer", "iterations", "elapsed_ms", "error", "turns", "created_at"}).
		AddRow("task-1", "default", "success", "done", 1, int64(500), nil, turnsJSON, time.Now())

	query := regexp.QuoteMeta(`SELECT task_id, session_id, status, answer, iterations, elapsed_ms, error, turns, created_at
		 FROM runs WHERE task_id=$1`)
	mock.ExpectQuery(query).WithArgs("task-1").WillReturnRows(rows)

	rec, turns, err := st.GetRun(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != "success" {
		t.Fatalf("unexpected status %q", rec.Status)
	}
	if len(turns) != 2 || turns[0].Kind != conversation.KindHuman || turns[1].Kind != conversation.KindFinal {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
