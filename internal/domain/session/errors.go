package session

import "errors"

// Sentinel errors for session tracking.
var (
	ErrInvalidInteraction = errors.New("invalid interaction type")
	ErrUnknownCommand     = errors.New("unknown track command")
)
