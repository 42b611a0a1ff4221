package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/vulnkb/store"
)

func TestCreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	v := &store.Vulnerability{
		Id:            "SNYK-PYTHON-DJANGO-1",
		Package:       "django",
		Severity:      "High",
		Description:   "SQL injection",
		PublishedDate: "2026-05-01",
	}

	require.NoError(t, s.Create(ctx, v))
	assert.ErrorIs(t, s.Create(ctx, v), store.ErrDuplicate)

	got, err := s.Get(ctx, v.Id)
	require.NoError(t, err)
	assert.Equal(t, "django", got.Package)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	v.Severity = "Critical"
	require.NoError(t, s.Update(ctx, v))

	got, err = s.Get(ctx, v.Id)
	require.NoError(t, err)
	assert.Equal(t, "Critical", got.Severity)

	assert.ErrorIs(t, s.Update(ctx, &store.Vulnerability{Id: "missing"}), store.ErrNotFound)

	require.NoError(t, s.Delete(ctx, v.Id))
	_, err = s.Get(ctx, v.Id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	v := &store.Vulnerability{Id: "SNYK-PYTHON-FLASK-2", Package: "flask", Severity: "Medium"}
	require.NoError(t, s.Create(ctx, v))

	before, err := s.Get(ctx, v.Id)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, &store.Vulnerability{Id: v.Id, Package: "flask", Severity: "Low"}))

	after, err := s.Get(ctx, v.Id)
	require.NoError(t, err)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, &store.Vulnerability{
			Id:            fmt.Sprintf("SNYK-PYTHON-DJANGO-%d", i),
			Package:       "django",
			Severity:      "High",
			PublishedDate: fmt.Sprintf("2026-0%d-01", i+1),
		}))
	}
	require.NoError(t, s.Create(ctx, &store.Vulnerability{
		Id:            "SNYK-PYTHON-FLASK-1",
		Package:       "flask",
		Severity:      "Low",
		PublishedDate: "2026-06-01",
	}))

	tests := []struct {
		name string
		opts []store.ListOption
		want []string
	}{
		{
			"NewestFirst",
			[]store.ListOption{store.WithLimit(3)},
			[]string{"SNYK-PYTHON-FLASK-1", "SNYK-PYTHON-DJANGO-4", "SNYK-PYTHON-DJANGO-3"},
		},
		{
			"ByPackage",
			[]store.ListOption{store.WithPackage("flask")},
			[]string{"SNYK-PYTHON-FLASK-1"},
		},
		{
			"BySeverity",
			[]store.ListOption{store.WithSeverity("Low")},
			[]string{"SNYK-PYTHON-FLASK-1"},
		},
		{
			"Offset",
			[]store.ListOption{store.WithLimit(2), store.WithOffset(1)},
			[]string{"SNYK-PYTHON-DJANGO-4", "SNYK-PYTHON-DJANGO-3"},
		},
		{
			"OffsetPastEnd",
			[]store.ListOption{store.WithOffset(100)},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns, err := s.List(ctx, tt.opts...)
			require.NoError(t, err)

			var ids []string
			for _, v := range vulns {
				ids = append(ids, v.Id)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestEmbeddingRefs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Create(ctx, &store.Vulnerability{Id: "SNYK-PYTHON-DJANGO-1", Package: "django"}))
	require.NoError(t, s.SetEmbeddingRef(ctx, "SNYK-PYTHON-DJANGO-1", "vuln_SNYK-PYTHON-DJANGO-1"))

	vectorId, err := s.VectorId(ctx, "SNYK-PYTHON-DJANGO-1")
	require.NoError(t, err)
	assert.Equal(t, "vuln_SNYK-PYTHON-DJANGO-1", vectorId)

	vulnerabilityId, err := s.VulnerabilityId(ctx, "vuln_SNYK-PYTHON-DJANGO-1")
	require.NoError(t, err)
	assert.Equal(t, "SNYK-PYTHON-DJANGO-1", vulnerabilityId)

	_, err = s.VectorId(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting the record drops its ref as well.
	require.NoError(t, s.Delete(ctx, "SNYK-PYTHON-DJANGO-1"))
	_, err = s.VectorId(ctx, "SNYK-PYTHON-DJANGO-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Create(ctx, &store.Vulnerability{Id: "a", Package: "django", Severity: "High", PublishedDate: "2026-05-01"}))
	require.NoError(t, s.Create(ctx, &store.Vulnerability{Id: "b", Package: "django", Severity: "High", PublishedDate: "2026-05-20"}))
	require.NoError(t, s.Create(ctx, &store.Vulnerability{Id: "c", Package: "flask", Severity: "Low", PublishedDate: "2026-06-02"}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"High": 2, "Low": 1}, stats.BySeverity)
	assert.Equal(t, map[string]int{"django": 2, "flask": 1}, stats.TopPackages)
	assert.Equal(t, map[string]int{"2026-05": 2, "2026-06": 1}, stats.ByMonth)
}
