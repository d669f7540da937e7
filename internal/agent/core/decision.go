package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDecision marks decision-function output the orchestrator could
// not parse. Recoverable up to the configured retry count.
var ErrMalformedDecision = errors.New("malformed decision")

// ParseDecision extracts the decision JSON object from a raw model response.
// The expected shape is either
//
//	{"capability": "write_file", "args": {"path": "notes.txt", "content": "hello"}}
//
// or
//
//	{"final": true, "answer": "done"}
//
// Models wrap JSON in prose and code fences often enough that we scan for
// the first balanced object instead of unmarshalling the whole response.
func ParseDecision(raw string) (Decision, error) {
	jsonStr := extractJSONObject(raw)
	if jsonStr == "" {
		return Decision{}, fmt.Errorf("%w: no JSON object in response", ErrMalformedDecision)
	}

	var body struct {
		Capability string                 `json:"capability"`
		Args       map[string]interface{} `json:"args"`
		Final      bool                   `json:"final"`
		Answer     string                 `json:"answer"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &body); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	if body.Final || (body.Capability == "" && body.Answer != "") {
		answer := strings.TrimSpace(body.Answer)
		if answer == "" {
			return Decision{}, fmt.Errorf("%w: final decision without answer", ErrMalformedDecision)
		}
		return Decision{Final: true, Answer: answer}, nil
	}
	if body.Capability == "" {
		return Decision{}, fmt.Errorf("%w: neither capability nor final answer", ErrMalformedDecision)
	}
	args := body.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	return Decision{Capability: body.Capability, Args: args}, nil
}

// extractJSONObject returns the first balanced top-level {...} in s,
// skipping braces inside JSON strings.
func extractJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
