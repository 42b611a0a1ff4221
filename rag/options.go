package rag

import (
	"context"

	"github.com/w-h-a/vulnkb/embedder"
	"github.com/w-h-a/vulnkb/generator"
	"github.com/w-h-a/vulnkb/store"
	"github.com/w-h-a/vulnkb/vectorindex"
)

type Option func(*Options)

type Options struct {
	Store     store.Store
	Embedder  embedder.Embedder
	Index     vectorindex.Index
	Generator generator.Generator
	Context   context.Context
}

func WithStore(s store.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

func WithEmbedder(e embedder.Embedder) Option {
	return func(o *Options) {
		o.Embedder = e
	}
}

func WithIndex(i vectorindex.Index) Option {
	return func(o *Options) {
		o.Index = i
	}
}

// WithGenerator sets the completion service. Leaving it unset is the
// development mode configuration.
func WithGenerator(g generator.Generator) Option {
	return func(o *Options) {
		o.Generator = g
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

type QueryOption func(*QueryOptions)

type QueryOptions struct {
	Count   int
	Context context.Context
}

func WithCount(count int) QueryOption {
	return func(o *QueryOptions) {
		o.Count = count
	}
}

func NewQueryOptions(opts ...QueryOption) QueryOptions {
	options := QueryOptions{
		Count:   5,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Count < 1 {
		options.Count = 5
	}
	return options
}
