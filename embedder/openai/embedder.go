package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/vulnkb/embedder"
	"github.com/w-h-a/vulnkb/embedder/local"
)

type openAIEmbedder struct {
	options embedder.Options
	client  *openai.Client
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil, nil
	}

	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.options.Model),
	})
	if err != nil {
		slog.WarnContext(ctx, "openai embedding failed, degrading to fallback vector", "error", err)
		return local.Vector(text, e.options.Dimension), nil
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		slog.WarnContext(ctx, "openai returned an empty embedding, degrading to fallback vector")
		return local.Vector(text, e.options.Dimension), nil
	}

	return rsp.Data[0].Embedding, nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	e := &openAIEmbedder{
		options: options,
	}

	client := openai.NewClient(options.ApiKey)

	e.client = client

	return e
}
