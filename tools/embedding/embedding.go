package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/dataworks-ops/automator/internal/capability"
)

// Embedder produces one vector per input text.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Descriptor returns the similar_texts capability: embed a list of texts and
// report the most similar pair by cosine similarity.
func Descriptor(embedder Embedder) capability.Descriptor {
	return capability.Descriptor{
		Name:        "similar_texts",
		Description: "Embeds a list of texts and returns the two most semantically similar ones. Provide at least two texts.",
		SideEffect:  capability.SideEffectNetwork,
		InputSchema: capability.ObjectSchema(map[string]interface{}{
			"texts": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		}, "texts"),
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			raw, ok := args["texts"].([]interface{})
			if !ok || len(raw) < 2 {
				return "", fmt.Errorf("texts must be a list of at least two strings")
			}
			texts := make([]string, 0, len(raw))
			for _, v := range raw {
				s, ok := v.(string)
				if !ok {
					return "", fmt.Errorf("texts must contain only strings")
				}
				texts = append(texts, s)
			}

			vectors, err := embedder.CreateEmbedding(ctx, texts)
			if err != nil {
				return "", fmt.Errorf("embed: %w", err)
			}
			if len(vectors) != len(texts) {
				return "", fmt.Errorf("embed: got %d vectors for %d texts", len(vectors), len(texts))
			}

			bestI, bestJ := 0, 1
			best := math.Inf(-1)
			for i := 0; i < len(vectors); i++ {
				for j := i + 1; j < len(vectors); j++ {
					if sim := cosine(vectors[i], vectors[j]); sim > best {
						best, bestI, bestJ = sim, i, j
					}
				}
			}
			return fmt.Sprintf("most similar pair (cosine %.4f):\n1: %s\n2: %s", best, texts[bestI], texts[bestJ]), nil
		},
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
