package queue

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithCapacity sets the total capacity, split evenly across shards.
func WithCapacity(capacity int) Option {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithShards sets the number of shards, normally one per worker.
func WithShards(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.shardCount = n
		}
	}
}
