package vectorindex

import "context"

// Index is a nearest-neighbor service over opaque vector ids. Query takes a
// batch of embeddings and returns one ranked match group per embedding;
// single-query callers pass a batch of one and unwrap the first group.
type Index interface {
	Add(ctx context.Context, vectors ...Vector) error
	Query(ctx context.Context, embeddings [][]float32, k int) ([][]Match, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Vector struct {
	Id        string
	Embedding []float32
	Metadata  map[string]any
	Document  string
}

type Match struct {
	Id       string
	Distance float32
	Metadata map[string]any
	Document string
}
