package embedder

import "context"

// Embedder maps text to a fixed-length vector. Implementations return a nil
// vector and nil error for empty input so callers can branch cleanly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
