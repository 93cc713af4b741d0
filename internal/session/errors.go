package session

import "errors"

// Sentinel errors returned by sessions. They are wrapped with an errs kind.
var (
	ErrNoEnergy       = errors.New("not enough energy")
	ErrRateLimited    = errors.New("tapping too fast")
	ErrUnknownSession = errors.New("session not found")
	ErrBattleActive   = errors.New("a battle is already active")
)
