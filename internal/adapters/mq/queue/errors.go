package queue

import "errors"

// Sentinel kinds for matchmaking errors.
var (
	ErrClosed       = errors.New("matchmaking queue closed")
	ErrInvalidEntry = errors.New("invalid matchmaking entry")
)
