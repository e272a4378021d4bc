package service

import (
	"github.com/coder/quartz"

	"github.com/okian/sitestats/internal/adapters/enricher"
	"github.com/okian/sitestats/internal/adapters/kv"
	"github.com/okian/sitestats/internal/config"
	"github.com/okian/sitestats/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses an already opened backend instead of opening the one the
// configuration names. The Service closes it on Stop.
func WithStore(store kv.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.backend = store
		}
	}
}

// WithWorkerCount sets the number of queue shards and workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the command queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.EventQueueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.DedupeSize = size
		}
	}
}

// WithClock sets the clock for sessions, summaries and the idle sweeper.
func WithClock(c quartz.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocationResolver overrides the resolver chosen from geoip_path.
func WithLocationResolver(r enricher.LocationResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithIDGenerator sets the generator for session and event ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
