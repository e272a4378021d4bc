package model

import "errors"

// Sentinel errors for model validation.
var (
	ErrInvalidRange   = errors.New("invalid date range")
	ErrInvalidCommand = errors.New("invalid track command")
)
