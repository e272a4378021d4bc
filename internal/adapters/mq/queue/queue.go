// Package queue buffers track commands between ingest and the workers.
//
// Commands are split into shards by visitor key so that every command of one
// visitor is consumed, in order, by the same worker.
package queue

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/metrics"
)

const (
	defaultCapacity = 100000
	defaultShards   = 8
)

// Queue is a bounded, sharded in-memory command queue.
type Queue struct {
	shards     []chan model.TrackCommand
	capacity   int
	shardCount int

	mu     sync.RWMutex
	closed bool
}

// New creates a Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		capacity:   defaultCapacity,
		shardCount: defaultShards,
	}
	for _, opt := range opts {
		opt(q)
	}

	per := max((q.capacity+q.shardCount-1)/q.shardCount, 1)
	q.shards = make([]chan model.TrackCommand, q.shardCount)
	for i := range q.shards {
		q.shards[i] = make(chan model.TrackCommand, per)
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// ShardFor returns the shard index for a command key.
func (q *Queue) ShardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(q.shards)))
}

// Enqueue adds cmd without blocking. It returns false when the shard is full,
// the queue is closed or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, cmd model.TrackCommand) bool { //nolint:gocritic // hugeParam: sent by value over the channel
	return q.TryEnqueue(ctx, cmd) == nil
}

// TryEnqueue is Enqueue reporting why a command was rejected.
func (q *Queue) TryEnqueue(ctx context.Context, cmd model.TrackCommand) error { //nolint:gocritic // hugeParam: sent by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	select {
	case q.shards[q.ShardFor(cmd.Key())] <- cmd:
		metrics.RecordQueueEnqueue()
		q.report()
		return nil
	default:
		metrics.RecordQueueRejected("full")
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Shard returns the receive side of shard i. It is closed by Close once
// drained.
func (q *Queue) Shard(i int) <-chan model.TrackCommand {
	return q.shards[i]
}

// Shards returns the number of shards.
func (q *Queue) Shards() int {
	return len(q.shards)
}

// Len returns the number of buffered commands across all shards.
func (q *Queue) Len() int {
	n := 0
	for _, s := range q.shards {
		n += len(s)
	}
	return n
}

// Capacity returns the configured total capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Close stops accepting commands. Buffered commands stay readable.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, s := range q.shards {
		close(s)
	}
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Dequeued updates gauges after a consumer took a command.
func (q *Queue) Dequeued() {
	metrics.RecordQueueDequeue()
	q.report()
}

func (q *Queue) report() {
	size := q.Len()
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
