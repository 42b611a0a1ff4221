package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	getsafe "github.com/w-h-a/vulnkb/util/get_safe"
	"github.com/w-h-a/vulnkb/vectorindex"
)

type qdrantIndex struct {
	options vectorindex.Options
	client  *http.Client
}

func (i *qdrantIndex) Add(ctx context.Context, vectors ...vectorindex.Vector) error {
	points := make([]map[string]any, 0, len(vectors))

	for _, v := range vectors {
		payload := map[string]any{
			"vector_id": v.Id,
			"metadata":  v.Metadata,
			"document":  v.Document,
		}

		points = append(points, map[string]any{
			"id":      pointId(v.Id),
			"vector":  v.Embedding,
			"payload": payload,
		})
	}

	req := map[string]any{
		"points": points,
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(i.options.Collection))

	if err := i.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

func (i *qdrantIndex) Query(ctx context.Context, embeddings [][]float32, k int) ([][]vectorindex.Match, error) {
	groups := make([][]vectorindex.Match, 0, len(embeddings))

	for _, embedding := range embeddings {
		req := map[string]any{
			"vector":       embedding,
			"limit":        k,
			"with_payload": true,
		}

		var rsp qdrantEnvelope[[]qdrantPointResult]

		path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(i.options.Collection))

		if err := i.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
			return nil, err
		}

		matches := make([]vectorindex.Match, 0, len(rsp.Result))

		for _, point := range rsp.Result {
			payload := point.Payload

			matches = append(matches, vectorindex.Match{
				Id:       getsafe.String(payload, "vector_id"),
				Distance: float32(1 - point.Score),
				Metadata: getsafe.Metadata(payload, "metadata"),
				Document: getsafe.String(payload, "document"),
			})
		}

		groups = append(groups, matches)
	}

	return groups, nil
}

func (i *qdrantIndex) Delete(ctx context.Context, id string) error {
	req := map[string]any{
		"points": []string{pointId(id)},
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(i.options.Collection))

	if err := i.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

func (i *qdrantIndex) Count(ctx context.Context) (int, error) {
	var rsp qdrantEnvelope[qdrantCountResult]

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(i.options.Collection))

	if err := i.do(ctx, http.MethodPost, path, map[string]any{"exact": true}, &rsp); err != nil {
		return 0, err
	}

	return rsp.Result.Count, nil
}

func (i *qdrantIndex) do(ctx context.Context, method string, path string, req any, rsp any) error {
	u := i.options.Location + path

	var buf io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	if len(i.options.ApiKey) > 0 {
		request.Header.Set("api-key", i.options.ApiKey)
		request.Header.Set("Authorization", "Bearer "+i.options.ApiKey)
	}

	response, err := i.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("qdrant http %d: %s", response.StatusCode, string(payload))
	}

	if rsp != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, rsp); err != nil {
			return err
		}
	}

	return nil
}

func (i *qdrantIndex) configure() error {
	exists, err := i.collectionExists()
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return i.createCollection()
}

func (i *qdrantIndex) collectionExists() (bool, error) {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(i.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	err := i.do(context.Background(), http.MethodGet, path, nil, &rsp)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, err
	}

	return strings.EqualFold(rsp.Status.State, "ok"), nil
}

func (i *qdrantIndex) createCollection() error {
	req := map[string]any{
		"vectors": map[string]any{
			"size":     i.options.Dimension,
			"distance": "Cosine",
		},
	}

	path := fmt.Sprintf("/collections/%s", url.PathEscape(i.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	if err := i.do(context.Background(), http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

// qdrant point ids must be uuids or unsigned ints, so the caller's opaque id
// is mapped to a deterministic uuid and kept in the payload.
func pointId(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func NewIndex(opts ...vectorindex.Option) vectorindex.Index {
	options := vectorindex.NewOptions(opts...)

	i := &qdrantIndex{
		options: options,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	if err := i.configure(); err != nil {
		detail := "failed to configure qdrant collection"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	return i
}
