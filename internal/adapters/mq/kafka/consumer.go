// Package kafka ingests track requests from a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coder/quartz"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/okian/sitestats/internal/adapters/mq/queue"
	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
	"github.com/okian/sitestats/pkg/metrics"
)

const defaultRetryDelay = 200 * time.Millisecond

// Reader is the subset of *kafka.Reader the Consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink accepts decoded commands. A queue.ErrFull result is retried, any
// other error drops the message.
type Sink interface {
	Ingest(ctx context.Context, cmd model.TrackCommand) error
}

// NewReader opens a consumer group reader for topic.
func NewReader(brokers []string, topic, group string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafkago.LastOffset,
	})
}

// Consumer moves messages from a Reader into a Sink.
type Consumer struct {
	reader     Reader
	sink       Sink
	clock      quartz.Clock
	retryDelay time.Duration
	log        logger.Logger
}

// New creates a Consumer.
func New(reader Reader, sink Sink, opts ...Option) *Consumer {
	c := &Consumer{
		reader:     reader,
		sink:       sink,
		clock:      quartz.NewReal(),
		retryDelay: defaultRetryDelay,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info(ctx, "kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info(ctx, "kafka consumer stopped")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("fetch message: %w", err)
			}
			c.log.Error(ctx, "failed to fetch message", logger.Error(err))
			metrics.RecordErrorByComponent("kafka", "fetch")
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error(ctx, "failed to commit message", logger.Error(err), logger.Int64("offset", msg.Offset))
			metrics.RecordErrorByComponent("kafka", "commit")
		}
	}
}

// handle delivers one message. It returns false only when ctx ended while
// waiting out backpressure, leaving the message uncommitted.
func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) bool { //nolint:gocritic // hugeParam: kafka API passes messages by value
	var req model.TrackRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		c.log.Warn(ctx, "dropping undecodable message",
			logger.Int64("offset", msg.Offset),
			logger.Error(err),
		)
		metrics.RecordErrorByComponent("kafka", "decode")
		return true
	}
	cmd := req.Command(c.clock.Now())

	for {
		err := c.sink.Ingest(ctx, cmd)
		switch {
		case err == nil:
			return true
		case errors.Is(err, queue.ErrFull):
			if !c.wait(ctx) {
				return false
			}
		default:
			c.log.Debug(ctx, "message not ingested",
				logger.String("event_id", cmd.EventID),
				logger.Error(err),
			)
			return true
		}
	}
}

// wait pauses for the retry delay. It reports false if ctx ended first.
func (c *Consumer) wait(ctx context.Context) bool {
	t := c.clock.NewTimer(c.retryDelay, "kafka", "retry")
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("close kafka reader: %w", err)
	}
	return nil
}
