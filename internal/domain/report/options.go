package report

import (
	"time"

	"github.com/coder/quartz"

	"github.com/okian/sitestats/pkg/logger"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithClock sets the clock that anchors the real-time window.
func WithClock(c quartz.Clock) Option {
	return func(g *Generator) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithLocation sets the zone used for time buckets.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}
