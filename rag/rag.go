package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/w-h-a/vulnkb/store"
	getsafe "github.com/w-h-a/vulnkb/util/get_safe"
	"github.com/w-h-a/vulnkb/vectorindex"
)

const (
	// SystemPrompt frames the completion model as a package security advisor.
	SystemPrompt = "You are a security advisor specializing in Python package vulnerabilities."

	msgEmbeddingFailed   = "Sorry, I couldn't process your query. Please try again."
	msgNoMatches         = "I couldn't find any relevant vulnerabilities in my database."
	msgNoDetails         = "I found some matches but couldn't retrieve the vulnerability details."
	msgGenerationFailed  = "Sorry, I encountered an error while generating a response."
	msgUnexpectedFailure = "An error occurred while processing your query. Please try again later."

	promptTemplate = `Use the following vulnerability information to answer the user's question:

%s

User question: %s

Provide a concise and informative response that directly addresses the user's question.
Focus on practical advice and clear explanations. If the information is not available
in the provided context, say so instead of making up information.

Remember to cite your sources by referring to the vulnerability IDs when providing specific information.`
)

// Result is what a single query produces: the composed answer and the
// records it was grounded in, in relevance order.
type Result struct {
	Response string                 `json:"response"`
	Sources  []*store.Vulnerability `json:"sources"`
}

// Engine answers natural-language questions about stored vulnerabilities. It
// embeds the query, finds nearest vectors, hydrates the matching records, and
// asks the generator for an answer grounded in them. Every collaborator is an
// explicit constructor dependency; the engine keeps no state between calls
// and only reads from the store and index.
//
// A nil generator puts the engine in development mode: answers are a
// clearly-labeled placeholder instead of model output.
type Engine struct {
	options Options
}

// ProcessQuery runs the full pipeline for one query. It is fail-soft by
// design: every failure mode maps to a well-formed Result carrying a
// user-facing message, never an error. Callers that need bounded latency
// impose their own deadline through ctx.
func (e *Engine) ProcessQuery(ctx context.Context, query string, opts ...QueryOption) (result *Result) {
	options := NewQueryOptions(opts...)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "query pipeline panicked", "panic", r)
			result = &Result{
				Response: msgUnexpectedFailure,
				Sources:  []*store.Vulnerability{},
			}
		}
	}()

	queryEmbedding, err := e.options.Embedder.Embed(ctx, query)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate embedding for query", "error", err)
		return &Result{
			Response: msgUnexpectedFailure,
			Sources:  []*store.Vulnerability{},
		}
	}
	if len(queryEmbedding) == 0 {
		slog.WarnContext(ctx, "no embedding produced for query")
		return &Result{
			Response: msgEmbeddingFailed,
			Sources:  []*store.Vulnerability{},
		}
	}

	groups, err := e.options.Index.Query(ctx, [][]float32{queryEmbedding}, options.Count)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query vector index", "error", err)
		return &Result{
			Response: msgUnexpectedFailure,
			Sources:  []*store.Vulnerability{},
		}
	}
	if len(groups) == 0 || len(groups[0]) == 0 {
		slog.WarnContext(ctx, "no similar vectors found for query")
		return &Result{
			Response: msgNoMatches,
			Sources:  []*store.Vulnerability{},
		}
	}

	vulnerabilities := e.resolve(ctx, groups[0])
	if len(vulnerabilities) == 0 {
		slog.WarnContext(ctx, "no vulnerabilities found for the matched vectors")
		return &Result{
			Response: msgNoDetails,
			Sources:  []*store.Vulnerability{},
		}
	}

	response := e.generate(ctx, query, prepareContext(vulnerabilities))

	return &Result{
		Response: response,
		Sources:  vulnerabilities,
	}
}

// resolve hydrates matches into full records, preserving match order. A match
// without a vulnerability_id and a record that no longer exists are both
// skipped rather than failing the whole call.
func (e *Engine) resolve(ctx context.Context, matches []vectorindex.Match) []*store.Vulnerability {
	vulnerabilities := make([]*store.Vulnerability, 0, len(matches))

	for _, match := range matches {
		vulnerabilityId := getsafe.String(match.Metadata, "vulnerability_id")
		if len(strings.TrimSpace(vulnerabilityId)) == 0 {
			slog.WarnContext(ctx, "match is missing vulnerability_id metadata, skipping", "vector_id", match.Id)
			continue
		}

		vulnerability, err := e.options.Store.Get(ctx, vulnerabilityId)
		if err != nil {
			slog.WarnContext(ctx, "failed to resolve matched vulnerability, skipping", "vulnerability_id", vulnerabilityId, "error", err)
			continue
		}

		vulnerabilities = append(vulnerabilities, vulnerability)
	}

	return vulnerabilities
}

func (e *Engine) generate(ctx context.Context, query string, contextText string) string {
	if e.options.Generator == nil {
		slog.WarnContext(ctx, "completion service is not configured - using development mode")
		return fmt.Sprintf(
			"This is a development mode response. I found information about several vulnerabilities that might be relevant to your query about '%s'.",
			query,
		)
	}

	prompt := fmt.Sprintf(promptTemplate, contextText, query)

	response, err := e.options.Generator.Generate(ctx, prompt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate response", "error", err)
		return msgGenerationFailed
	}

	return response
}

// prepareContext renders one paragraph per record, in the order given.
func prepareContext(vulnerabilities []*store.Vulnerability) string {
	paragraphs := make([]string, 0, len(vulnerabilities))

	for idx, v := range vulnerabilities {
		paragraphs = append(paragraphs, fmt.Sprintf(
			`Vulnerability #%d:
ID: %s
Package: %s
Severity: %s
Published Date: %s
Description: %s
Affected Versions: %s
Remediation: %s`,
			idx+1,
			v.Id,
			v.Package,
			v.Severity,
			v.PublishedDate,
			v.Description,
			orNotSpecified(v.AffectedVersions),
			orNotSpecified(v.Remediation),
		))
	}

	return strings.Join(paragraphs, "\n\n")
}

func orNotSpecified(s string) string {
	if len(s) == 0 {
		return "Not specified"
	}
	return s
}

func NewEngine(opts ...Option) *Engine {
	options := NewOptions(opts...)

	if options.Store == nil || options.Embedder == nil || options.Index == nil {
		panic("rag engine requires a store, an embedder, and a vector index")
	}

	return &Engine{
		options: options,
	}
}
