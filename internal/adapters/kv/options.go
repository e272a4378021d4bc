package kv

import (
	"github.com/okian/sitestats/pkg/logger"
)

const (
	defaultMaxRetries = 16
	defaultScanCount  = 512
)

// Option configures a backend.
type Option func(*options)

type options struct {
	log        logger.Logger
	prefix     string
	maxRetries int
	scanCount  int64
	inMemory   bool
}

func defaultOptions() options {
	return options{
		log:        logger.Nop(),
		maxRetries: defaultMaxRetries,
		scanCount:  defaultScanCount,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for backend diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithKeyPrefix namespaces every key written by the redis backend.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithMaxRetries bounds optimistic transaction retries in Update.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithScanCount sets the SSCAN batch hint of the redis backend.
func WithScanCount(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.scanCount = n
		}
	}
}

// WithInMemory runs badger without touching disk. Used by tests.
func WithInMemory() Option {
	return func(o *options) { o.inMemory = true }
}
