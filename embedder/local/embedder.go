package local

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/w-h-a/vulnkb/embedder"
)

type localEmbedder struct {
	options embedder.Options
}

func (e *localEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil, nil
	}

	return Vector(text, e.options.Dimension), nil
}

// Vector produces a deterministic pseudo-random embedding seeded from the
// text. The same input always yields the same vector, which keeps retrieval
// stable in development mode and lets remote embedders degrade to a
// same-shaped fallback.
func Vector(text string, dimension int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))

	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vector := make([]float32, dimension)
	for i := range vector {
		vector[i] = float32(rng.NormFloat64() * 0.01)
	}

	return vector
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	return &localEmbedder{
		options: options,
	}
}
