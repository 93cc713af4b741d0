package combat

import (
	"math/rand/v2"
	"sync"
)

// Roller supplies the randomness used by the resolver.
type Roller interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

type globalRoller struct{}

func (globalRoller) Float64() float64 { return rand.Float64() }
func (globalRoller) IntN(n int) int   { return rand.IntN(n) }

// DefaultRoller draws from the process-wide generator.
func DefaultRoller() Roller { return globalRoller{} }

// seededRoller is a deterministic Roller safe for concurrent use.
type seededRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRoller returns a reproducible Roller.
func NewSeededRoller(seed uint64) Roller {
	return &seededRoller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *seededRoller) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *seededRoller) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}
