package core

import (
	"errors"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			name: "capability with args",
			raw:  `{"capability": "write_file", "args": {"path": "a.txt", "content": "hi"}}`,
			want: Decision{Capability: "write_file", Args: map[string]interface{}{"path": "a.txt", "content": "hi"}},
		},
		{
			name: "capability without args gets empty map",
			raw:  `{"capability": "list_files"}`,
			want: Decision{Capability: "list_files", Args: map[string]interface{}{}},
		},
		{
			name: "final answer",
			raw:  `{"final": true, "answer": "42"}`,
			want: Decision{Final: true, Answer: "42"},
		},
		{
			name: "answer without final flag",
			raw:  `{"answer": "all done"}`,
			want: Decision{Final: true, Answer: "all done"},
		},
		{
			name: "json wrapped in prose",
			raw:  "Sure, here is my decision:\n```json\n{\"capability\": \"run_command\", \"args\": {\"command\": \"ls\"}}\n```\nLet me know.",
			want: Decision{Capability: "run_command", Args: map[string]interface{}{"command": "ls"}},
		},
		{
			name: "braces inside strings",
			raw:  `{"capability": "write_file", "args": {"path": "a.json", "content": "{\"nested\": \"}\"}"}}`,
			want: Decision{Capability: "write_file", Args: map[string]interface{}{"path": "a.json", "content": `{"nested": "}"}`}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.raw)
			if err != nil {
				t.Fatalf("ParseDecision: %v", err)
			}
			if got.Final != tt.want.Final || got.Answer != tt.want.Answer || got.Capability != tt.want.Capability {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if len(got.Args) != len(tt.want.Args) {
				t.Fatalf("args mismatch: got %+v, want %+v", got.Args, tt.want.Args)
			}
			for k, v := range tt.want.Args {
				if got.Args[k] != v {
					t.Fatalf("arg %q: got %v, want %v", k, got.Args[k], v)
				}
			}
		})
	}
}

func TestParseDecisionMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty response", ""},
		{"prose only", "I think we should look at the files first."},
		{"unbalanced braces", `{"capability": "ls"`},
		{"invalid json", `{capability: ls}`},
		{"final without answer", `{"final": true, "answer": "  "}`},
		{"neither capability nor answer", `{"args": {"path": "x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision(tt.raw)
			if !errors.Is(err, ErrMalformedDecision) {
				t.Fatalf("expected ErrMalformedDecision, got %v", err)
			}
		})
	}
}
