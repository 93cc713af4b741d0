// Package energy implements the regenerating energy resource.
//
// Regeneration is a pure function of the elapsed wall time and the regen rate.
// The same rules apply to the persistent player record and to session caches.
package energy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Rate bounds in units per second.
const (
	MinRate = 0.1
	MaxRate = 10.0
)

// ErrInsufficient is returned by Spend when the regenerated energy is short.
var ErrInsufficient = errors.New("insufficient energy")

// State is the regeneration input and output.
type State struct {
	Energy     int
	MaxEnergy  int
	Rate       float64
	LastUpdate time.Time
}

// ClampRate bounds rate to [MinRate, MaxRate].
func ClampRate(rate float64) float64 {
	if math.IsNaN(rate) || rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

// Regenerate credits whole units earned since s.LastUpdate.
// The anchor moves to now only when at least one unit was gained; leftover
// sub-unit time is dropped at that point. Non-positive elapsed time is a no-op.
func Regenerate(s State, now time.Time) (State, bool) {
	elapsed := now.Sub(s.LastUpdate)
	if elapsed <= 0 {
		return s, false
	}
	perUnitMS := 1000 / ClampRate(s.Rate)
	gained := int64(math.Floor(float64(elapsed.Milliseconds()) / perUnitMS))
	if gained <= 0 {
		return s, false
	}
	next := s
	total := int64(s.Energy) + gained
	if total > int64(s.MaxEnergy) {
		total = int64(s.MaxEnergy)
	}
	if total < int64(s.Energy) {
		// Already above max; never take energy away.
		total = int64(s.Energy)
	}
	next.Energy = int(total)
	next.LastUpdate = now
	return next, true
}

// Shortfall describes a failed Spend.
type Shortfall struct {
	Needed    int
	Available int
}

func (e *Shortfall) Error() string {
	return fmt.Sprintf("need %d, have %d", e.Needed, e.Available)
}

func (e *Shortfall) Is(target error) bool {
	return target == ErrInsufficient
}

// Spend regenerates s up to now and deducts amount. The anchor is set to now
// on success so a freshly spent pool starts a new regeneration period.
func Spend(s State, amount int, now time.Time) (State, error) {
	s, _ = Regenerate(s, now)
	if s.Energy < amount {
		return s, &Shortfall{Needed: amount, Available: s.Energy}
	}
	s.Energy -= amount
	if now.After(s.LastUpdate) {
		s.LastUpdate = now
	}
	return s, nil
}
