// Package kv provides the durable key-value layer behind the event store.
//
// Records live in named collections, one key per record, so concurrent
// writers appending to the same collection never overwrite each other.
// Update is an atomic read-modify-write of a single record.
package kv

import (
	"context"
)

// UpdateFunc receives the current value of a record and returns its replacement.
type UpdateFunc func(current []byte) ([]byte, error)

// ScanFunc is called once per record. The value must not be retained after
// the call returns. Returning an error stops the scan.
type ScanFunc func(id string, value []byte) error

// Store is implemented by every backend.
type Store interface {
	// Get returns the value of a plain key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes a plain key.
	Set(ctx context.Context, key string, value []byte) error

	// Put creates or replaces one record of a collection.
	Put(ctx context.Context, collection, id string, value []byte) error
	// Update atomically rewrites an existing record. It returns ErrNotFound
	// when the record does not exist and ErrConflict when retries run out.
	Update(ctx context.Context, collection, id string, fn UpdateFunc) error
	// Scan visits every record of a collection in unspecified order.
	Scan(ctx context.Context, collection string, fn ScanFunc) error
	// Drop removes every record of a collection.
	Drop(ctx context.Context, collection string) error

	Close() error
}
