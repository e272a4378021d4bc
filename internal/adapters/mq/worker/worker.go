// Package worker applies queued track commands, one worker per queue shard.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
	"github.com/okian/sitestats/pkg/metrics"
)

const defaultShutdownTimeout = 30 * time.Second

// Handler applies one command.
type Handler interface {
	Apply(ctx context.Context, cmd model.TrackCommand) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd model.TrackCommand) error

// Apply calls f.
func (f HandlerFunc) Apply(ctx context.Context, cmd model.TrackCommand) error { //nolint:gocritic // hugeParam: matches Handler
	return f(ctx, cmd)
}

// Queue is the sharded source workers read from.
type Queue interface {
	Shards() int
	Shard(i int) <-chan model.TrackCommand
	Dequeued()
	Close() error
}

// Worker drains a single shard.
type Worker struct {
	name    string
	in      <-chan model.TrackCommand
	queue   Queue
	handler Handler
	logger  logger.Logger
	done    chan struct{}

	processed *atomic.Int64
	failed    *atomic.Int64
}

// Run applies commands until the shard is closed and drained or ctx ends.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-w.in:
			if !ok {
				return
			}
			w.queue.Dequeued()
			w.process(ctx, cmd)
		}
	}
}

func (w *Worker) process(ctx context.Context, cmd model.TrackCommand) { //nolint:gocritic // hugeParam: received by value from the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	err := w.handler.Apply(ctx, cmd)
	if err != nil {
		w.failed.Add(1)
	}
	// Counted after the handler returns so callers may wait on it.
	w.processed.Add(1)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", string(cmd.Type))
		w.logger.Error(ctx, "apply failed",
			logger.String("event_id", cmd.EventID),
			logger.String("project_id", cmd.ProjectID),
			logger.String("visitor_id", cmd.Visitor.ID),
			logger.String("type", string(cmd.Type)),
			logger.Error(err),
		)
	}
}

// Pool runs one Worker per queue shard.
type Pool struct {
	workers         []*Worker
	queue           Queue
	logger          logger.Logger
	shutdownTimeout time.Duration

	processed atomic.Int64
	failed    atomic.Int64
	startOnce sync.Once
}

// NewPool creates a pool over every shard of q.
func NewPool(q Queue, h Handler, opts ...Option) *Pool {
	p := &Pool{
		queue:           q,
		logger:          logger.Nop(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*Worker, q.Shards())
	for i := range p.workers {
		name := "worker-" + strconv.Itoa(i)
		p.workers[i] = &Worker{
			name:      name,
			in:        q.Shard(i),
			queue:     q,
			handler:   h,
			logger:    p.logger.Named(name),
			done:      make(chan struct{}),
			processed: &p.processed,
			failed:    &p.failed,
		}
	}
	metrics.UpdateWorkerCount(len(p.workers))
	return p
}

// Start launches every worker. Later calls do nothing.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
	})
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many commands were applied, including failures.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Failed returns how many commands the handler rejected.
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

// Shutdown closes the queue and waits for workers to drain what is buffered.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.shutdownTimeout)
	defer cancel()

	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-waitCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
			return fmt.Errorf("shutdown timed out: %w", waitCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
