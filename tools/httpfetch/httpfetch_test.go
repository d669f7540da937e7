package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dataworks-ops/automator/internal/sandbox"
)

func newGuard(t *testing.T) *sandbox.Guard {
	t.Helper()
	guard, err := sandbox.NewGuard(sandbox.Policy{WorkspaceRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return guard
}

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response payload"))
	}))
	defer srv.Close()

	desc := Descriptor(newGuard(t), 0)
	out, err := desc.Handler(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if out != "response payload" {
		t.Fatalf("unexpected body %q", out)
	}
}

func TestFetchSavesToWorkspace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("csv,data\n1,2\n"))
	}))
	defer srv.Close()

	guard := newGuard(t)
	desc := Descriptor(guard, 0)
	out, err := desc.Handler(context.Background(), map[string]interface{}{
		"url":     srv.URL,
		"save_to": "downloads/data.csv",
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(out, "saved") {
		t.Fatalf("unexpected output %q", out)
	}
	data, err := os.ReadFile(filepath.Join(guard.Workspace(), "downloads", "data.csv"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "csv,data\n1,2\n" {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestFetchRejectsEscapingSavePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	desc := Descriptor(newGuard(t), 0)
	if _, err := desc.Handler(context.Background(), map[string]interface{}{
		"url":     srv.URL,
		"save_to": "../stolen.txt",
	}); err == nil {
		t.Fatal("expected workspace rejection")
	}
}

func TestFetchRejectsNonHTTP(t *testing.T) {
	desc := Descriptor(newGuard(t), 0)
	for _, u := range []string{"ftp://host/file", "file:///etc/passwd", "notaurl"} {
		if _, err := desc.Handler(context.Background(), map[string]interface{}{"url": u}); err == nil {
			t.Errorf("url %q: expected rejection", u)
		}
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	desc := Descriptor(newGuard(t), 0)
	if _, err := desc.Handler(context.Background(), map[string]interface{}{"url": srv.URL}); err == nil {
		t.Fatal("expected failure on 403")
	}
}

func TestFetchCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	desc := Descriptor(newGuard(t), 100)
	out, err := desc.Handler(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(out) != 100 {
		t.Fatalf("expected capped body of 100 bytes, got %d", len(out))
	}
}
