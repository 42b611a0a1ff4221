package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hupe1980/vecgo"
	"github.com/hupe1980/vecgo/metadata"
	"github.com/w-h-a/vulnkb/vectorindex"
)

type entry struct {
	id       string
	meta     map[string]any
	document string
}

// localIndex is an embedded exact-search index. It keeps its own mapping
// between the opaque string ids callers use and the numeric ids vecgo
// assigns.
type localIndex struct {
	options  vectorindex.Options
	db       *vecgo.Vecgo[entry]
	internal map[string]uint64
	mtx      sync.RWMutex
}

func (i *localIndex) Add(ctx context.Context, vectors ...vectorindex.Vector) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	for _, v := range vectors {
		if prev, ok := i.internal[v.Id]; ok {
			if err := i.db.Delete(ctx, prev); err != nil {
				slog.WarnContext(ctx, "failed to drop stale vector before re-add", "id", v.Id, "error", err)
			}
			delete(i.internal, v.Id)
		}

		id, err := i.db.Insert(ctx, vecgo.VectorWithData[entry]{
			Vector: v.Embedding,
			Data: entry{
				id:       v.Id,
				meta:     v.Metadata,
				document: v.Document,
			},
			Metadata: toVecgoMetadata(v.Metadata),
		})
		if err != nil {
			return err
		}

		i.internal[v.Id] = id
	}

	return nil
}

func (i *localIndex) Query(ctx context.Context, embeddings [][]float32, k int) ([][]vectorindex.Match, error) {
	groups := make([][]vectorindex.Match, 0, len(embeddings))

	i.mtx.RLock()
	defer i.mtx.RUnlock()

	for _, embedding := range embeddings {
		results, err := i.db.Search(embedding).KNN(k).Execute(ctx)
		if err != nil {
			return nil, err
		}

		matches := make([]vectorindex.Match, 0, len(results))

		for _, result := range results {
			matches = append(matches, vectorindex.Match{
				Id:       result.Data.id,
				Distance: result.Distance,
				Metadata: result.Data.meta,
				Document: result.Data.document,
			})
		}

		groups = append(groups, matches)
	}

	return groups, nil
}

func (i *localIndex) Delete(ctx context.Context, id string) error {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	internal, ok := i.internal[id]
	if !ok {
		return nil
	}

	if err := i.db.Delete(ctx, internal); err != nil {
		return err
	}

	delete(i.internal, id)

	return nil
}

func (i *localIndex) Count(ctx context.Context) (int, error) {
	i.mtx.RLock()
	defer i.mtx.RUnlock()

	return len(i.internal), nil
}

func toVecgoMetadata(meta map[string]any) metadata.Metadata {
	if len(meta) == 0 {
		return nil
	}

	converted := metadata.Metadata{}

	for key, value := range meta {
		switch v := value.(type) {
		case string:
			converted[key] = metadata.String(v)
		case int:
			converted[key] = metadata.Int(int64(v))
		case int64:
			converted[key] = metadata.Int(v)
		}
	}

	return converted
}

func NewIndex(opts ...vectorindex.Option) vectorindex.Index {
	options := vectorindex.NewOptions(opts...)

	db, err := vecgo.Flat[entry](options.Dimension).Cosine().Build()
	if err != nil {
		detail := "failed to build local vector index"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	return &localIndex{
		options:  options,
		db:       db,
		internal: map[string]uint64{},
	}
}
