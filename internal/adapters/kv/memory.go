package kv

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a process-local Store. Nothing survives a restart.
type Memory struct {
	mu          sync.RWMutex
	keys        map[string][]byte
	collections map[string]map[string][]byte
	closed      bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		keys:        make(map[string][]byte),
		collections: make(map[string]map[string][]byte),
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.keys[key] = clone(value)
	return nil
}

func (m *Memory) Put(_ context.Context, collection, id string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string][]byte)
		m.collections[collection] = c
	}
	c[id] = clone(value)
	return nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cur, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	next, err := fn(clone(cur))
	if err != nil {
		return err
	}
	m.collections[collection][id] = clone(next)
	return nil
}

// Scan visits a copy of the collection taken under the read lock, so fn may
// call back into the store.
func (m *Memory) Scan(ctx context.Context, collection string, fn ScanFunc) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	snapshot := make(map[string][]byte, len(m.collections[collection]))
	for id, v := range m.collections[collection] {
		snapshot[id] = v
	}
	m.mu.RUnlock()

	for id, v := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Drop(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.collections, collection)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
