package session

import (
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/okian/sitestats/internal/adapters/enricher"
	"github.com/okian/sitestats/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithClassifier sets the user agent classifier.
func WithClassifier(c enricher.Classifier) Option {
	return func(m *Manager) {
		if c != nil {
			m.classifier = c
		}
	}
}

// WithLocationResolver sets the client IP resolver.
func WithLocationResolver(r enricher.LocationResolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithClock sets the clock used for every timestamp and duration.
func WithClock(c quartz.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func newUUID() string {
	return uuid.NewString()
}
