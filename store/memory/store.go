package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/w-h-a/vulnkb/store"
)

type memoryStore struct {
	options store.Options
	vulns   map[string]store.Vulnerability
	refs    map[string]string
	mtx     sync.RWMutex
}

func (s *memoryStore) Create(ctx context.Context, v *store.Vulnerability) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.vulns[v.Id]; ok {
		return store.ErrDuplicate
	}

	cpy := *v
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = time.Now().UTC()
	}

	s.vulns[v.Id] = cpy

	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*store.Vulnerability, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	v, ok := s.vulns[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return &v, nil
}

func (s *memoryStore) List(ctx context.Context, opts ...store.ListOption) ([]*store.Vulnerability, error) {
	options := store.NewListOptions(opts...)

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	candidates := make([]store.Vulnerability, 0, len(s.vulns))

	for _, v := range s.vulns {
		if len(options.Package) > 0 && v.Package != options.Package {
			continue
		}
		if len(options.Severity) > 0 && v.Severity != options.Severity {
			continue
		}
		candidates = append(candidates, v)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PublishedDate > candidates[j].PublishedDate
	})

	if options.Offset >= len(candidates) {
		return nil, nil
	}
	candidates = candidates[options.Offset:]

	if options.Limit > 0 && len(candidates) > options.Limit {
		candidates = candidates[:options.Limit]
	}

	vulns := make([]*store.Vulnerability, 0, len(candidates))
	for i := range candidates {
		vulns = append(vulns, &candidates[i])
	}

	return vulns, nil
}

func (s *memoryStore) Update(ctx context.Context, v *store.Vulnerability) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.vulns[v.Id]
	if !ok {
		return store.ErrNotFound
	}

	cpy := *v
	cpy.CreatedAt = existing.CreatedAt

	s.vulns[v.Id] = cpy

	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.vulns, id)
	delete(s.refs, id)

	return nil
}

func (s *memoryStore) SetEmbeddingRef(ctx context.Context, vulnerabilityId string, vectorId string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.refs[vulnerabilityId] = vectorId

	return nil
}

func (s *memoryStore) VectorId(ctx context.Context, vulnerabilityId string) (string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	vectorId, ok := s.refs[vulnerabilityId]
	if !ok {
		return "", store.ErrNotFound
	}

	return vectorId, nil
}

func (s *memoryStore) VulnerabilityId(ctx context.Context, vectorId string) (string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for vulnId, vecId := range s.refs {
		if vecId == vectorId {
			return vulnId, nil
		}
	}

	return "", store.ErrNotFound
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.vulns), nil
}

func (s *memoryStore) Statistics(ctx context.Context) (*store.Statistics, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	stats := &store.Statistics{
		Total:       len(s.vulns),
		BySeverity:  map[string]int{},
		TopPackages: map[string]int{},
		ByMonth:     map[string]int{},
	}

	for _, v := range s.vulns {
		stats.BySeverity[v.Severity]++
		stats.TopPackages[v.Package]++
		if len(v.PublishedDate) >= 7 {
			stats.ByMonth[v.PublishedDate[:7]]++
		}
	}

	return stats, nil
}

func (s *memoryStore) Close() error {
	return nil
}

func NewStore(opts ...store.Option) store.Store {
	options := store.NewOptions(opts...)

	return &memoryStore{
		options: options,
		vulns:   map[string]store.Vulnerability{},
		refs:    map[string]string{},
	}
}
