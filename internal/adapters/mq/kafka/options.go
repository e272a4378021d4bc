package kafka

import (
	"time"

	"github.com/coder/quartz"

	"github.com/okian/sitestats/pkg/logger"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetryDelay sets the pause before retrying a message refused by
// backpressure.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithClock sets the clock stamped on received commands and timing retries.
func WithClock(clk quartz.Clock) Option {
	return func(c *Consumer) {
		if clk != nil {
			c.clock = clk
		}
	}
}
