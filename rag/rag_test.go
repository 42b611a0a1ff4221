package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/vulnkb/store"
	"github.com/w-h-a/vulnkb/store/memory"
	"github.com/w-h-a/vulnkb/vectorindex"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector, e.err
}

type fakeIndex struct {
	groups  [][]vectorindex.Match
	err     error
	gotK    int
	panicky bool
}

func (i *fakeIndex) Add(ctx context.Context, vectors ...vectorindex.Vector) error {
	return nil
}

func (i *fakeIndex) Query(ctx context.Context, embeddings [][]float32, k int) ([][]vectorindex.Match, error) {
	if i.panicky {
		panic("index exploded")
	}
	i.gotK = k
	return i.groups, i.err
}

func (i *fakeIndex) Delete(ctx context.Context, id string) error {
	return nil
}

func (i *fakeIndex) Count(ctx context.Context) (int, error) {
	return 0, nil
}

type fakeGenerator struct {
	response string
	err      error
	prompt   string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.response, g.err
}

func seededStore(t *testing.T, vulns ...store.Vulnerability) store.Store {
	t.Helper()

	s := memory.NewStore()
	for i := range vulns {
		require.NoError(t, s.Create(context.Background(), &vulns[i]))
	}

	return s
}

func match(vectorId string, vulnerabilityId string) vectorindex.Match {
	m := vectorindex.Match{Id: vectorId}
	if len(vulnerabilityId) > 0 {
		m.Metadata = map[string]any{"vulnerability_id": vulnerabilityId}
	}
	return m
}

func TestProcessQueryEmbeddingUnavailable(t *testing.T) {
	engine := NewEngine(
		WithStore(seededStore(t)),
		WithEmbedder(&fakeEmbedder{vector: nil}),
		WithIndex(&fakeIndex{}),
	)

	result := engine.ProcessQuery(context.Background(), "django sql injection")

	assert.Equal(t, msgEmbeddingFailed, result.Response)
	assert.Empty(t, result.Sources)
}

func TestProcessQueryNoMatches(t *testing.T) {
	engine := NewEngine(
		WithStore(seededStore(t)),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(&fakeIndex{groups: [][]vectorindex.Match{{}}}),
	)

	result := engine.ProcessQuery(context.Background(), "django sql injection")

	assert.Equal(t, msgNoMatches, result.Response)
	assert.Empty(t, result.Sources)
}

func TestProcessQueryNoResolvableDetails(t *testing.T) {
	index := &fakeIndex{groups: [][]vectorindex.Match{{
		match("vuln_gone", "gone"),
		match("vuln_anonymous", ""),
	}}}

	engine := NewEngine(
		WithStore(seededStore(t)),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(index),
	)

	result := engine.ProcessQuery(context.Background(), "django sql injection")

	assert.Equal(t, msgNoDetails, result.Response)
	assert.Empty(t, result.Sources)
}

func TestProcessQuerySkipsOnlyUnresolvableMatches(t *testing.T) {
	s := seededStore(t,
		store.Vulnerability{Id: "SNYK-PYTHON-DJANGO-1", Package: "django", Severity: "High", Description: "SQL injection"},
		store.Vulnerability{Id: "SNYK-PYTHON-FLASK-2", Package: "flask", Severity: "Medium", Description: "Open redirect"},
	)

	index := &fakeIndex{groups: [][]vectorindex.Match{{
		match("vuln_SNYK-PYTHON-DJANGO-1", "SNYK-PYTHON-DJANGO-1"),
		match("vuln_mystery", ""),
		match("vuln_gone", "SNYK-PYTHON-GONE-3"),
		match("vuln_SNYK-PYTHON-FLASK-2", "SNYK-PYTHON-FLASK-2"),
	}}}

	engine := NewEngine(
		WithStore(s),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(index),
	)

	result := engine.ProcessQuery(context.Background(), "django sql injection")

	require.Len(t, result.Sources, 2)
	assert.Equal(t, "SNYK-PYTHON-DJANGO-1", result.Sources[0].Id)
	assert.Equal(t, "SNYK-PYTHON-FLASK-2", result.Sources[1].Id)

	// No generator configured, so the engine answers in development mode.
	assert.Contains(t, result.Response, "development mode")
	assert.Contains(t, result.Response, "django sql injection")
}

func TestProcessQueryGenerationFailure(t *testing.T) {
	s := seededStore(t,
		store.Vulnerability{Id: "SNYK-PYTHON-DJANGO-1", Package: "django", Severity: "High", Description: "SQL injection"},
	)

	engine := NewEngine(
		WithStore(s),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(&fakeIndex{groups: [][]vectorindex.Match{{
			match("vuln_SNYK-PYTHON-DJANGO-1", "SNYK-PYTHON-DJANGO-1"),
		}}}),
		WithGenerator(&fakeGenerator{err: errors.New("rate limited")}),
	)

	result := engine.ProcessQuery(context.Background(), "django sql injection")

	assert.Equal(t, msgGenerationFailed, result.Response)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "SNYK-PYTHON-DJANGO-1", result.Sources[0].Id)
}

func TestProcessQueryPromptCarriesContext(t *testing.T) {
	s := seededStore(t,
		store.Vulnerability{
			Id:            "SNYK-PYTHON-DJANGO-1",
			Package:       "django",
			Severity:      "High",
			Description:   "SQL injection",
			PublishedDate: "2026-05-01",
		},
	)

	g := &fakeGenerator{response: "Upgrade django."}

	engine := NewEngine(
		WithStore(s),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(&fakeIndex{groups: [][]vectorindex.Match{{
			match("vuln_SNYK-PYTHON-DJANGO-1", "SNYK-PYTHON-DJANGO-1"),
		}}}),
		WithGenerator(g),
	)

	result := engine.ProcessQuery(context.Background(), "is django vulnerable?")

	assert.Equal(t, "Upgrade django.", result.Response)
	assert.Contains(t, g.prompt, "SNYK-PYTHON-DJANGO-1")
	assert.Contains(t, g.prompt, "Affected Versions: Not specified")
	assert.Contains(t, g.prompt, "User question: is django vulnerable?")
}

func TestProcessQueryCount(t *testing.T) {
	index := &fakeIndex{groups: [][]vectorindex.Match{{}}}

	engine := NewEngine(
		WithStore(seededStore(t)),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(index),
	)

	engine.ProcessQuery(context.Background(), "anything")
	assert.Equal(t, 5, index.gotK)

	engine.ProcessQuery(context.Background(), "anything", WithCount(2))
	assert.Equal(t, 2, index.gotK)

	engine.ProcessQuery(context.Background(), "anything", WithCount(-1))
	assert.Equal(t, 5, index.gotK)
}

func TestProcessQueryRecoversFromPanic(t *testing.T) {
	engine := NewEngine(
		WithStore(seededStore(t)),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(&fakeIndex{panicky: true}),
	)

	result := engine.ProcessQuery(context.Background(), "anything")

	assert.Equal(t, msgUnexpectedFailure, result.Response)
	assert.Empty(t, result.Sources)
}

func TestProcessQuerySourcesAreIdempotent(t *testing.T) {
	s := seededStore(t,
		store.Vulnerability{Id: "SNYK-PYTHON-DJANGO-1", Package: "django", Severity: "High"},
		store.Vulnerability{Id: "SNYK-PYTHON-FLASK-2", Package: "flask", Severity: "Medium"},
	)

	engine := NewEngine(
		WithStore(s),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(&fakeIndex{groups: [][]vectorindex.Match{{
			match("vuln_SNYK-PYTHON-FLASK-2", "SNYK-PYTHON-FLASK-2"),
			match("vuln_SNYK-PYTHON-DJANGO-1", "SNYK-PYTHON-DJANGO-1"),
		}}}),
	)

	first := engine.ProcessQuery(context.Background(), "anything")
	second := engine.ProcessQuery(context.Background(), "anything")

	require.Equal(t, len(first.Sources), len(second.Sources))
	for i := range first.Sources {
		assert.Equal(t, first.Sources[i].Id, second.Sources[i].Id)
	}
}

func TestProcessQueryEndToEnd(t *testing.T) {
	s := seededStore(t, store.Vulnerability{
		Id:            "django-1",
		Package:       "django",
		Severity:      "High",
		Description:   "SQL injection",
		PublishedDate: "2023-01-01",
	})

	engine := NewEngine(
		WithStore(s),
		WithEmbedder(&fakeEmbedder{vector: []float32{0.1, 0.2}}),
		WithIndex(&fakeIndex{groups: [][]vectorindex.Match{{
			match("vuln_django-1", "django-1"),
		}}}),
	)

	result := engine.ProcessQuery(context.Background(), "Is django safe?")

	require.Len(t, result.Sources, 1)
	assert.Equal(t, "django-1", result.Sources[0].Id)
	assert.Equal(t, "SQL injection", result.Sources[0].Description)
	assert.NotEmpty(t, result.Response)
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() {
		NewEngine(
			WithEmbedder(&fakeEmbedder{}),
			WithIndex(&fakeIndex{}),
		)
	})
}
