package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/w-h-a/vulnkb/embedder"
	googleembedder "github.com/w-h-a/vulnkb/embedder/google"
	localembedder "github.com/w-h-a/vulnkb/embedder/local"
	openaiembedder "github.com/w-h-a/vulnkb/embedder/openai"
	"github.com/w-h-a/vulnkb/generator"
	"github.com/w-h-a/vulnkb/generator/anthropic"
	openaigenerator "github.com/w-h-a/vulnkb/generator/openai"
	"github.com/w-h-a/vulnkb/ingest"
	"github.com/w-h-a/vulnkb/rag"
	httpserver "github.com/w-h-a/vulnkb/server/http"
	"github.com/w-h-a/vulnkb/store"
	"github.com/w-h-a/vulnkb/store/memory"
	"github.com/w-h-a/vulnkb/store/postgres"
	"github.com/w-h-a/vulnkb/store/sqlite"
	"github.com/w-h-a/vulnkb/vectorindex"
	localindex "github.com/w-h-a/vulnkb/vectorindex/local"
	"github.com/w-h-a/vulnkb/vectorindex/pgvector"
	"github.com/w-h-a/vulnkb/vectorindex/qdrant"
)

type backendConfig struct {
	// Store config
	Store         string `help:"Relational backend" enum:"sqlite,postgres,memory" default:"sqlite"`
	StoreLocation string `help:"Database file for sqlite or DSN for postgres" env:"STORE_LOCATION" default:"data/vulnkb.db"`

	// Embedder config
	Embedder       string `help:"Embedding backend" enum:"local,openai,google" default:"local"`
	EmbedderKey    string `help:"API key for the embedding backend" env:"EMBEDDER_API_KEY" default:""`
	EmbeddingModel string `help:"Model identifier for vector embeddings" default:"text-embedding-3-small"`
	Dimension      int    `help:"Embedding dimension" default:"1536"`

	// Index config
	Index         string `help:"Vector index backend" enum:"local,qdrant,pgvector" default:"local"`
	IndexLocation string `help:"Address of qdrant or DSN for pgvector" env:"INDEX_LOCATION" default:""`
	IndexKey      string `help:"API key for the vector index backend" env:"INDEX_API_KEY" default:""`
	Collection    string `help:"Vector collection name" default:"vulnerabilities"`
}

type generatorConfig struct {
	Generator       string  `help:"Generation backend; local answers without a model" enum:"local,openai,anthropic" default:"local"`
	GeneratorKey    string  `help:"API key for the generation backend" env:"GENERATOR_API_KEY" default:""`
	GenerationModel string  `help:"Model identifier for response generation" default:"gpt-3.5-turbo"`
	Temperature     float32 `help:"Sampling temperature for response generation" default:"0.5"`
	MaxTokens       int     `help:"Token cap for generated responses" default:"800"`
}

type scrapeConfig struct {
	BaseURL      string        `help:"Advisory listing base URL" default:"https://security.snyk.io/vuln/pip/"`
	Pages        int           `help:"Number of listing pages to scrape" default:"10"`
	FetchDetails bool          `help:"Fetch each advisory page for remediation details" default:"false"`
	Delay        time.Duration `help:"Pause between page fetches" default:"1s"`
}

type serveCmd struct {
	backendConfig
	generatorConfig
	scrapeConfig

	Address        string        `help:"Bind address for the HTTP API" default:":8000"`
	Origins        []string      `help:"Allowed CORS origins" default:"http://localhost:3000"`
	Ingest         bool          `help:"Run the scrape and embed job on startup" default:"true"`
	IngestInterval time.Duration `help:"How often to rerun the ingestion job; 0 runs it once" default:"0"`
}

type scrapeCmd struct {
	backendConfig
	scrapeConfig
}

type embedCmd struct {
	backendConfig
}

var cli struct {
	Serve  serveCmd  `cmd:"" help:"Run the HTTP API and the ingestion job" default:"1"`
	Scrape scrapeCmd `cmd:"" help:"Scrape advisories into the relational store"`
	Embed  embedCmd  `cmd:"" help:"Embed and index stored vulnerabilities"`
}

func (c *backendConfig) newStore() store.Store {
	switch c.Store {
	case "postgres":
		return postgres.NewStore(
			store.WithLocation(c.StoreLocation),
		)
	case "memory":
		return memory.NewStore()
	default:
		return sqlite.NewStore(
			store.WithLocation(c.StoreLocation),
		)
	}
}

func (c *backendConfig) newEmbedder() embedder.Embedder {
	switch c.Embedder {
	case "openai":
		return openaiembedder.NewEmbedder(
			embedder.WithApiKey(c.EmbedderKey),
			embedder.WithModel(c.EmbeddingModel),
			embedder.WithDimension(c.Dimension),
		)
	case "google":
		return googleembedder.NewEmbedder(
			embedder.WithApiKey(c.EmbedderKey),
			embedder.WithModel(c.EmbeddingModel),
			embedder.WithDimension(c.Dimension),
		)
	default:
		return localembedder.NewEmbedder(
			embedder.WithDimension(c.Dimension),
		)
	}
}

func (c *backendConfig) newIndex() vectorindex.Index {
	switch c.Index {
	case "qdrant":
		return qdrant.NewIndex(
			vectorindex.WithLocation(c.IndexLocation),
			vectorindex.WithApiKey(c.IndexKey),
			vectorindex.WithCollection(c.Collection),
			vectorindex.WithDimension(c.Dimension),
		)
	case "pgvector":
		return pgvector.NewIndex(
			vectorindex.WithLocation(c.IndexLocation),
			vectorindex.WithCollection(c.Collection),
			vectorindex.WithDimension(c.Dimension),
		)
	default:
		return localindex.NewIndex(
			vectorindex.WithDimension(c.Dimension),
		)
	}
}

// newGenerator returns nil for the local backend, which puts the query
// engine in development mode.
func (c *generatorConfig) newGenerator() generator.Generator {
	switch c.Generator {
	case "openai":
		return openaigenerator.NewGenerator(
			generator.WithApiKey(c.GeneratorKey),
			generator.WithModel(c.GenerationModel),
			generator.WithSystemPrompt(rag.SystemPrompt),
			generator.WithTemperature(c.Temperature),
			generator.WithMaxTokens(c.MaxTokens),
		)
	case "anthropic":
		return anthropic.NewGenerator(
			generator.WithApiKey(c.GeneratorKey),
			generator.WithModel(c.GenerationModel),
			generator.WithSystemPrompt(rag.SystemPrompt),
			generator.WithTemperature(c.Temperature),
			generator.WithMaxTokens(c.MaxTokens),
		)
	default:
		return nil
	}
}

func (c *scrapeConfig) newScraper(s store.Store) *ingest.Scraper {
	return ingest.NewScraper(
		s,
		ingest.WithBaseURL(c.BaseURL),
		ingest.WithPages(c.Pages),
		ingest.WithFetchDetails(c.FetchDetails),
		ingest.WithDelay(c.Delay),
	)
}

func (c *serveCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := c.newStore()
	defer s.Close()

	e := c.newEmbedder()
	index := c.newIndex()

	engine := rag.NewEngine(
		rag.WithStore(s),
		rag.WithEmbedder(e),
		rag.WithIndex(index),
		rag.WithGenerator(c.newGenerator()),
	)

	if c.Ingest {
		job := ingest.NewJob(c.newScraper(s), ingest.NewEmbeddings(s, e, index))
		go func() {
			if c.IngestInterval > 0 {
				job.Schedule(ctx, c.IngestInterval)
				return
			}
			if err := job.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "ingestion job failed", "error", err)
			}
		}()
	}

	server := httpserver.NewServer(
		engine,
		s,
		index,
		httpserver.WithAddress(c.Address),
		httpserver.WithAllowedOrigins(c.Origins...),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	slog.InfoContext(ctx, "serving", "address", c.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Stop(shutdownCtx)
}

func (c *scrapeCmd) Run() error {
	ctx := context.Background()

	s := c.newStore()
	defer s.Close()

	found, stored, err := c.newScraper(s).Run(ctx)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "scrape complete", "found", found, "stored", stored)

	return nil
}

func (c *embedCmd) Run() error {
	ctx := context.Background()

	s := c.newStore()
	defer s.Close()

	processed, failed, err := ingest.NewEmbeddings(s, c.newEmbedder(), c.newIndex()).ProcessAll(ctx)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "embedding backfill complete", "processed", processed, "failed", failed)

	return nil
}

func main() {
	_ = godotenv.Load()

	kctx := kong.Parse(&cli)

	if err := kctx.Run(); err != nil {
		slog.ErrorContext(context.Background(), "command failed", "error", err)
		os.Exit(1)
	}
}
