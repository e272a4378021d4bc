// Package dedupe remembers client event ids so ingest is idempotent.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 500000

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id, e.g. when the event it guarded was rejected by
	// queue backpressure and the client will retry.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type slot struct {
	id  string
	gen uint64
}

// inMemoryDeduper keeps at most maxSize ids and forgets the oldest first.
// With maxSize <= 0 it never forgets.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64
	ring    []slot
	next    int
	gen     uint64
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.gen++
	if d.ring != nil {
		// A slot whose generation no longer matches was unrecorded or re-added.
		old := d.ring[d.next]
		if gen, ok := d.seen[old.id]; ok && gen == old.gen {
			delete(d.seen, old.id)
		}
		d.ring[d.next] = slot{id: id, gen: d.gen}
		d.next = (d.next + 1) % len(d.ring)
	}
	d.seen[id] = d.gen
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Size returns the number of ids currently remembered.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
