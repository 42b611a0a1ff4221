package ingest

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	BaseURL      string
	Pages        int
	FetchDetails bool
	Delay        time.Duration
	Context      context.Context
}

func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		o.BaseURL = baseURL
	}
}

func WithPages(pages int) Option {
	return func(o *Options) {
		o.Pages = pages
	}
}

func WithFetchDetails(fetch bool) Option {
	return func(o *Options) {
		o.FetchDetails = fetch
	}
}

func WithDelay(delay time.Duration) Option {
	return func(o *Options) {
		o.Delay = delay
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		BaseURL:      "https://security.snyk.io/vuln/pip/",
		Pages:        10,
		FetchDetails: false,
		Delay:        time.Second,
		Context:      context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
