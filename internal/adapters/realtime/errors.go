package realtime

import "errors"

// Gateway errors. Their text is sent to clients in error envelopes.
var (
	ErrBusy           = errors.New("previous action still processing, retry later")
	ErrNotInitialized = errors.New("session not initialized, send init first")
	ErrUnknownAction  = errors.New("unsupported action")
	ErrBadPayload     = errors.New("invalid payload")
	ErrPlayerOffline  = errors.New("player is no longer connected")
	ErrInBattle       = errors.New("player is already in a battle")
)
