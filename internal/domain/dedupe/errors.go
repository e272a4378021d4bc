package dedupe

import "errors"

// ErrDuplicate reports an event id that was already accepted.
var ErrDuplicate = errors.New("duplicate event")
