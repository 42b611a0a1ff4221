package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/vulnkb/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s := NewStore(store.WithLocation(filepath.Join(t.TempDir(), "vulnkb.db")))
	t.Cleanup(func() { s.Close() })

	return s
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v := &store.Vulnerability{
		Id:               "SNYK-PYTHON-DJANGO-1",
		Package:          "django",
		Severity:         "High",
		Description:      "SQL injection",
		PublishedDate:    "2026-05-01",
		AffectedVersions: "<4.2.1",
	}

	require.NoError(t, s.Create(ctx, v))
	assert.ErrorIs(t, s.Create(ctx, v), store.ErrDuplicate)

	got, err := s.Get(ctx, v.Id)
	require.NoError(t, err)
	assert.Equal(t, "django", got.Package)
	assert.Equal(t, "<4.2.1", got.AffectedVersions)
	assert.Empty(t, got.Remediation)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v := &store.Vulnerability{
		Id: "SNYK-PYTHON-DJANGO-1", Package: "django", Severity: "High", Description: "SQL injection", PublishedDate: "2026-05-01",
	}
	require.NoError(t, s.Create(ctx, v))

	v.Remediation = "Upgrade to 4.2.1"
	require.NoError(t, s.Update(ctx, v))

	got, err := s.Get(ctx, v.Id)
	require.NoError(t, err)
	assert.Equal(t, "Upgrade to 4.2.1", got.Remediation)

	assert.ErrorIs(t, s.Update(ctx, &store.Vulnerability{Id: "missing", Package: "x", Severity: "Low", Description: "d", PublishedDate: "2026-01-01"}), store.ErrNotFound)

	require.NoError(t, s.SetEmbeddingRef(ctx, v.Id, "vuln_SNYK-PYTHON-DJANGO-1"))
	require.NoError(t, s.Delete(ctx, v.Id))

	_, err = s.Get(ctx, v.Id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.VectorId(ctx, v.Id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListAndStatistics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seed := []store.Vulnerability{
		{Id: "a", Package: "django", Severity: "High", Description: "x", PublishedDate: "2026-05-01"},
		{Id: "b", Package: "django", Severity: "High", Description: "y", PublishedDate: "2026-06-01"},
		{Id: "c", Package: "flask", Severity: "Low", Description: "z", PublishedDate: "2026-04-01"},
	}
	for i := range seed {
		require.NoError(t, s.Create(ctx, &seed[i]))
	}

	vulns, err := s.List(ctx, store.WithPackage("django"))
	require.NoError(t, err)
	require.Len(t, vulns, 2)
	assert.Equal(t, "b", vulns[0].Id)
	assert.Equal(t, "a", vulns[1].Id)

	vulns, err = s.List(ctx, store.WithSeverity("Low"))
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, "c", vulns[0].Id)

	vulns, err = s.List(ctx, store.WithLimit(1), store.WithOffset(1))
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, "a", vulns[0].Id)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"High": 2, "Low": 1}, stats.BySeverity)
	assert.Equal(t, map[string]int{"django": 2, "flask": 1}, stats.TopPackages)
	assert.Equal(t, map[string]int{"2026-04": 1, "2026-05": 1, "2026-06": 1}, stats.ByMonth)
}

func TestEmbeddingRefUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, &store.Vulnerability{
		Id: "SNYK-PYTHON-DJANGO-1", Package: "django", Severity: "High", Description: "x", PublishedDate: "2026-05-01",
	}))

	require.NoError(t, s.SetEmbeddingRef(ctx, "SNYK-PYTHON-DJANGO-1", "vuln_old"))
	require.NoError(t, s.SetEmbeddingRef(ctx, "SNYK-PYTHON-DJANGO-1", "vuln_new"))

	vectorId, err := s.VectorId(ctx, "SNYK-PYTHON-DJANGO-1")
	require.NoError(t, err)
	assert.Equal(t, "vuln_new", vectorId)

	vulnerabilityId, err := s.VulnerabilityId(ctx, "vuln_new")
	require.NoError(t, err)
	assert.Equal(t, "SNYK-PYTHON-DJANGO-1", vulnerabilityId)
}
