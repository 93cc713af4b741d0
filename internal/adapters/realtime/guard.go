package realtime

import (
	"sync"
	"time"

	"github.com/okian/tapbattle/pkg/metrics"
)

// Guard is a per-connection busy flag with a watchdog. Each acquisition
// returns a token; releasing with a token from an earlier acquisition is a
// no-op, so a handler that finishes after the watchdog fired cannot clear a
// newer acquisition.
type Guard struct {
	timeout time.Duration
	onReset func()

	mu    sync.Mutex
	busy  bool
	token uint64
	timer *time.Timer
}

// NewGuard creates a Guard whose watchdog clears the flag after timeout.
// onReset, if set, runs when the watchdog fires.
func NewGuard(timeout time.Duration, onReset func()) *Guard {
	return &Guard{timeout: timeout, onReset: onReset}
}

// TryAcquire marks the guard busy and returns its token, or false when it
// is already busy.
func (g *Guard) TryAcquire() (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return 0, false
	}
	g.busy = true
	g.token++
	tok := g.token
	if g.timeout > 0 {
		g.timer = time.AfterFunc(g.timeout, func() { g.expire(tok) })
	}
	return tok, true
}

// Release clears the flag if token is current. It reports whether it did.
func (g *Guard) Release(token uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy || token != g.token {
		return false
	}
	g.busy = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return true
}

// Busy reports whether an action holds the guard.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

func (g *Guard) expire(token uint64) {
	g.mu.Lock()
	if !g.busy || token != g.token {
		g.mu.Unlock()
		return
	}
	g.busy = false
	g.timer = nil
	g.mu.Unlock()
	metrics.RecordWatchdogRelease()
	if g.onReset != nil {
		g.onReset()
	}
}

// Stop cancels a pending watchdog.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
