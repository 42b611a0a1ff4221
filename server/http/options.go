package http

import "context"

type Option func(*Options)

type Options struct {
	Address        string
	Prefix         string
	AllowedOrigins []string
	Context        context.Context
}

func WithAddress(address string) Option {
	return func(o *Options) {
		o.Address = address
	}
}

func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

func WithAllowedOrigins(origins ...string) Option {
	return func(o *Options) {
		o.AllowedOrigins = origins
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Address:        ":8000",
		Prefix:         "/api",
		AllowedOrigins: []string{"http://localhost:3000"},
		Context:        context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
