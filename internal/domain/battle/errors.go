package battle

import "errors"

// Sentinel errors. They are wrapped with an errs kind before leaving the package.
var (
	ErrMinimumStake       = errors.New("minimum energy required for battle is 10")
	ErrMissingAvatar      = errors.New("player doesn't have a selected avatar")
	ErrInsufficientEnergy = errors.New("not enough energy for battle")
	ErrNotInProgress      = errors.New("battle is not in progress")
	ErrWrongBattleType    = errors.New("operation does not match battle type")
	ErrNotParticipant     = errors.New("player is not a participant of this battle")
	ErrInvalidAction      = errors.New("unknown battle action")
	ErrSelfMatch          = errors.New("a player cannot battle themselves")
	ErrAlreadyBattling    = errors.New("player already battling")
)

// PlayerError ties a failure to the one player who caused it, so the other
// side of a match can be told apart.
type PlayerError struct {
	PlayerID string
	Err      error
}

func (e *PlayerError) Error() string { return e.Err.Error() }

func (e *PlayerError) Unwrap() error { return e.Err }
