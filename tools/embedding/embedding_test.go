package embedding

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (e fixedEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func TestMostSimilarPair(t *testing.T) {
	embedder := fixedEmbedder{vectors: map[string][]float32{
		"the cat sat":       {1, 0, 0},
		"a cat was sitting": {0.9, 0.1, 0},
		"stock prices fell": {0, 0, 1},
	}}
	desc := Descriptor(embedder)

	out, err := desc.Handler(context.Background(), map[string]interface{}{
		"texts": []interface{}{"the cat sat", "a cat was sitting", "stock prices fell"},
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(out, "the cat sat") || !strings.Contains(out, "a cat was sitting") {
		t.Fatalf("expected the two cat sentences, got %q", out)
	}
	if strings.Contains(out, "stock prices fell") {
		t.Fatalf("unexpected pair member: %q", out)
	}
}

func TestRequiresTwoTexts(t *testing.T) {
	desc := Descriptor(fixedEmbedder{})
	if _, err := desc.Handler(context.Background(), map[string]interface{}{
		"texts": []interface{}{"only one"},
	}); err == nil {
		t.Fatal("expected error for single text")
	}
	if _, err := desc.Handler(context.Background(), map[string]interface{}{
		"texts": []interface{}{"a", 42},
	}); err == nil {
		t.Fatal("expected error for non-string entry")
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors: got %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got > 0.001 {
		t.Fatalf("orthogonal vectors: got %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("mismatched lengths must be 0, got %f", got)
	}
}
