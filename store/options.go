package store

import "context"

type Option func(*Options)

type Options struct {
	Location string
	Context  context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
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

type ListOption func(*ListOptions)

type ListOptions struct {
	Package  string
	Severity string
	Limit    int
	Offset   int
	Context  context.Context
}

func WithPackage(pkg string) ListOption {
	return func(o *ListOptions) {
		o.Package = pkg
	}
}

func WithSeverity(severity string) ListOption {
	return func(o *ListOptions) {
		o.Severity = severity
	}
}

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) {
		o.Limit = limit
	}
}

func WithOffset(offset int) ListOption {
	return func(o *ListOptions) {
		o.Offset = offset
	}
}

func NewListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{
		Limit:   10,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
