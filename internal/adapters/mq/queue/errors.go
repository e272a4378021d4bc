package queue

import "errors"

// Rejection reasons reported by Enqueue.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue shard full")
)
