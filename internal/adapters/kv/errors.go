package kv

import "errors"

// Sentinel errors returned by every backend.
var (
	ErrNotFound       = errors.New("kv: not found")
	ErrConflict       = errors.New("kv: update conflict")
	ErrClosed         = errors.New("kv: store closed")
	ErrUnknownBackend = errors.New("kv: unknown backend")
)
