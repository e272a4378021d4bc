package repository

import "errors"

// Sentinel kinds for event store errors.
var (
	// ErrWrite wraps every failed persistence call. Reads never fail; they degrade.
	ErrWrite    = errors.New("event store write failed")
	ErrNotFound = errors.New("event not found")
)
