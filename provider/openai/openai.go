package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dataworks-ops/automator/config"
	"github.com/dataworks-ops/automator/internal/agent/core"
	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/conversation"
)

// Client talks to an OpenAI-compatible chat/embeddings backend and
// implements core.Decider. The base URL is configurable so proxy
// deployments work unchanged.
type Client struct {
	baseURL        string
	apiKey         string
	chatModel      string
	embeddingModel string
	temperature    float64
	maxTokens      int
	maxRetries     int
	httpClient     *http.Client
}

// NewClient builds a client from the LLM configuration.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		maxRetries:     cfg.MaxRetries,
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decide renders the conversation window into a chat request and parses the
// model's JSON decision.
func (c *Client) Decide(ctx context.Context, task core.Task, window []conversation.Turn, capabilities []capability.Descriptor) (core.Decision, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(capabilities)},
		{Role: "user", Content: renderWindow(task, window)},
	}
	raw, err := c.chat(ctx, messages)
	if err != nil {
		return core.Decision{}, err
	}
	return core.ParseDecision(raw)
}

func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":       c.chatModel,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// CreateEmbedding embeds the given texts with the configured model.
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/embeddings", body, &out); err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// postJSON posts with bounded retries on transport errors and 429/5xx.
func (c *Client) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	var lastErr error
	tries := c.maxRetries + 1
	if tries < 1 {
		tries = 1
	}
	for attempt := 0; attempt < tries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}

func systemPrompt(capabilities []capability.Descriptor) string {
	var b strings.Builder
	b.WriteString(`You are an automation agent that completes operations tasks by invoking capabilities one at a time.

CAPABILITIES:
`)
	for _, d := range capabilities {
		schema, _ := json.Marshal(d.InputSchema)
		fmt.Fprintf(&b, "- %s (%s): %s\n  arguments: %s\n", d.Name, d.SideEffect, d.Description, schema)
	}
	b.WriteString(`
RULES:
1. All file paths are relative to the workspace; files outside it are off limits and deletion is never permitted.
2. Inspect each observation before deciding the next step. If a capability was rejected or failed, adjust or finish with an explanation.
3. Respond with EXACTLY ONE JSON object and no other text.

RESPONSE FORMAT, one of:
{"capability": "<name>", "args": {...}}
{"final": true, "answer": "<answer for the user>"}
`)
	return b.String()
}

func renderWindow(task core.Task, window []conversation.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n\nCONVERSATION SO FAR:\n", task.Description)
	for _, t := range window {
		switch t.Kind {
		case conversation.KindHuman:
			fmt.Fprintf(&b, "human: %s\n", t.Text)
		case conversation.KindDecision:
			fmt.Fprintf(&b, "decision: %s %s\n", t.Capability, core.RenderArgs(t.Args))
		case conversation.KindObservation:
			if t.Err != "" {
				fmt.Fprintf(&b, "observation (%s) ERROR: %s\n", t.Capability, t.Err)
			} else {
				fmt.Fprintf(&b, "observation (%s): %s\n", t.Capability, truncate(t.Result, 4000))
			}
		case conversation.KindFinal:
			fmt.Fprintf(&b, "final: %s\n", t.Text)
		}
	}
	b.WriteString("\nNext decision:")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…(truncated)"
}
