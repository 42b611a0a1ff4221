package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/w-h-a/vulnkb/embedder"
	"github.com/w-h-a/vulnkb/store"
	"github.com/w-h-a/vulnkb/vectorindex"
)

const backfillBatch = 10000

// Embeddings backfills the vector index: every stored vulnerability without
// an embedding reference gets embedded, added to the index, and recorded in
// the reference table.
type Embeddings struct {
	store    store.Store
	embedder embedder.Embedder
	index    vectorindex.Index
}

// ProcessAll embeds every vulnerability that has no embedding reference yet
// and returns processed/failed counts.
func (e *Embeddings) ProcessAll(ctx context.Context) (int, int, error) {
	vulns, err := e.store.List(ctx, store.WithLimit(backfillBatch))
	if err != nil {
		return 0, 0, err
	}

	slog.InfoContext(ctx, "processing vulnerabilities for embeddings", "count", len(vulns))

	processed, failed := 0, 0

	for _, v := range vulns {
		_, err := e.store.VectorId(ctx, v.Id)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			failed++
			continue
		}

		if err := e.Process(ctx, v); err != nil {
			slog.WarnContext(ctx, "failed to embed vulnerability", "id", v.Id, "error", err)
			failed++
			continue
		}

		processed++
	}

	slog.InfoContext(ctx, "embedding backfill completed", "processed", processed, "failed", failed)

	return processed, failed, nil
}

// Process embeds a single vulnerability and records its reference. Re-running
// it replaces the previous vector; the most recent embedding wins.
func (e *Embeddings) Process(ctx context.Context, v *store.Vulnerability) error {
	text := EmbeddingText(v)

	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("generate embedding: %w", err)
	}
	if len(vector) == 0 {
		return errors.New("no embedding produced")
	}

	vectorId := "vuln_" + v.Id

	if err := e.index.Add(ctx, vectorindex.Vector{
		Id:        vectorId,
		Embedding: vector,
		Metadata: map[string]any{
			"vulnerability_id": v.Id,
			"package":          v.Package,
			"severity":         v.Severity,
		},
		Document: text,
	}); err != nil {
		return fmt.Errorf("add vector: %w", err)
	}

	if err := e.store.SetEmbeddingRef(ctx, v.Id, vectorId); err != nil {
		return fmt.Errorf("set embedding ref: %w", err)
	}

	return nil
}

// EmbeddingText renders the record as the text that gets embedded.
func EmbeddingText(v *store.Vulnerability) string {
	parts := []string{
		fmt.Sprintf("ID: %s", v.Id),
		fmt.Sprintf("Package: %s", v.Package),
		fmt.Sprintf("Severity: %s", v.Severity),
		fmt.Sprintf("Description: %s", v.Description),
	}

	if len(v.AffectedVersions) > 0 {
		parts = append(parts, fmt.Sprintf("Affected Versions: %s", v.AffectedVersions))
	}
	if len(v.Remediation) > 0 {
		parts = append(parts, fmt.Sprintf("Remediation: %s", v.Remediation))
	}

	return strings.Join(parts, "\n")
}

func NewEmbeddings(s store.Store, e embedder.Embedder, i vectorindex.Index) *Embeddings {
	return &Embeddings{
		store:    s,
		embedder: e,
		index:    i,
	}
}
