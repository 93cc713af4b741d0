package session

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tapbattle/internal/domain/energy"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
	"golang.org/x/time/rate"
)

// Snapshot is the hot state echoed to clients.
type Snapshot struct {
	PlayerID         string    `json:"player_id"`
	Coins            int64     `json:"coins"`
	Energy           int       `json:"energy"`
	MaxEnergy        int       `json:"max_energy"`
	EnergyRegenRate  float64   `json:"energy_regen_rate"`
	LastEnergyUpdate time.Time `json:"last_energy_update"`
	Level            int       `json:"level"`
	ActiveBattleID   string    `json:"active_battle_id,omitempty"`
	UnsyncedTaps     int       `json:"unsynced_taps"`
}

// Session caches one player's hot fields for every connection of that player.
type Session struct {
	mgr      *Manager
	playerID string

	// flushMu serializes store round trips for this player.
	flushMu sync.Mutex

	mu           sync.Mutex
	coins        int64
	en           energy.State
	level        int
	activeBattle string
	unflushed    int
	queued       bool
	stale        bool
	limiter      *rate.Limiter
	conns        map[string]struct{}
}

func newSession(m *Manager, p *model.Player) *Session {
	s := &Session{
		mgr:      m,
		playerID: p.ID,
		limiter:  rate.NewLimiter(rate.Limit(m.tapRate), m.tapBurst),
		conns:    make(map[string]struct{}),
	}
	s.load(p, m.now())
	return s
}

// PlayerID returns the player the session belongs to.
func (s *Session) PlayerID() string { return s.playerID }

// load replaces the cached fields with the stored record, keeping unflushed
// taps on top. Caller holds s.mu.
func (s *Session) load(p *model.Player, now time.Time) {
	st, _ := energy.Regenerate(energy.State{
		Energy:     p.Energy,
		MaxEnergy:  p.MaxEnergy,
		Rate:       p.EnergyRegenRate,
		LastUpdate: p.LastEnergyUpdate,
	}, now)
	st.Energy = max(0, st.Energy-s.unflushed)
	s.en = st
	s.coins = p.Coins + int64(s.unflushed)
	s.level = p.Level
}

// Snapshot returns the cached state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		PlayerID:         s.playerID,
		Coins:            s.coins,
		Energy:           s.en.Energy,
		MaxEnergy:        s.en.MaxEnergy,
		EnergyRegenRate:  s.en.Rate,
		LastEnergyUpdate: s.en.LastUpdate,
		Level:            s.level,
		ActiveBattleID:   s.activeBattle,
		UnsyncedTaps:     s.unflushed,
	}
}

// Tap credits one coin for one energy. The returned snapshot is valid on
// error too and reflects the rejected state.
func (s *Session) Tap(ctx context.Context) (Snapshot, error) {
	const op = "session.tap"
	now := s.mgr.now()
	s.mu.Lock()
	if !s.limiter.AllowN(now, 1) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		metrics.RecordTapRejected("rate_limited")
		return snap, errs.WrapKind(op, errs.ErrValidation, ErrRateLimited)
	}
	s.en, _ = energy.Regenerate(s.en, now)
	if s.en.Energy <= 0 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		metrics.RecordTapRejected("no_energy")
		return snap, errs.WrapKind(op, errs.ErrValidation, ErrNoEnergy)
	}
	if s.en.Energy >= s.en.MaxEnergy {
		// A full pool starts its regeneration period at the first spend.
		s.en.LastUpdate = now
	}
	s.en.Energy--
	s.coins++
	s.unflushed++
	snap := s.snapshotLocked()
	schedule := s.unflushed >= s.mgr.flushEvery && !s.queued && s.mgr.StoreAvailable()
	if schedule {
		s.queued = true
	}
	s.mu.Unlock()
	metrics.RecordTapAccepted()

	if schedule && !s.mgr.submit(s) {
		s.mu.Lock()
		s.queued = false
		s.mu.Unlock()
		s.mgr.log.Debug(ctx, "flush deferred to sync tick", logger.PlayerID(s.playerID))
	}
	return snap, nil
}

// Dirty reports whether taps await a flush.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unflushed > 0 || s.stale
}

// Flush writes unsynced taps to the store as a coin increment plus the
// cached energy. Taps made while the write is in flight stay unsynced.
func (s *Session) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked requires s.flushMu.
func (s *Session) flushLocked(ctx context.Context) error {
	const op = "session.flush"
	s.mu.Lock()
	s.queued = false
	stale := s.stale
	s.mu.Unlock()
	if stale {
		if err := s.reloadLocked(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	n := s.unflushed
	st := s.en
	s.mu.Unlock()
	if n == 0 {
		return nil
	}

	start := time.Now()
	err := s.mgr.store.FlushTaps(ctx, s.playerID, int64(n), st.Energy, st.LastUpdate)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		if errs.Is(err, errs.ErrUnavailable) {
			metrics.RecordFlush("unavailable", latency)
			s.mgr.markDown(ctx, err)
		} else {
			metrics.RecordFlush("error", latency)
		}
		return errs.Wrap(op, err)
	}
	metrics.RecordFlush("ok", latency)
	s.mgr.markUp(ctx)

	s.mu.Lock()
	s.unflushed -= n
	s.mu.Unlock()
	return nil
}

// Sync flushes and then reloads the stored record so writes made through
// other paths (battles, tasks) become visible in the cache.
func (s *Session) Sync(ctx context.Context) error {
	return s.Exclusive(ctx, nil)
}

// Exclusive flushes, runs fn and reloads while no other flush for this
// player can interleave. A failed flush does not prevent fn: unflushed taps
// are re-applied on top of whatever the reload returns.
func (s *Session) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if err := s.flushLocked(ctx); err != nil {
		s.mgr.log.Debug(ctx, "pre-sync flush failed", logger.PlayerID(s.playerID), logger.Error(err))
	}
	var fnErr error
	if fn != nil {
		fnErr = fn(ctx)
	}
	if err := s.reloadLocked(ctx); err != nil {
		if fnErr != nil {
			return fnErr
		}
		return err
	}
	return fnErr
}

// reloadLocked requires s.flushMu. On failure the session is marked stale
// and the next flush reloads first, so a cached energy value that predates
// a store-side debit is never written back.
func (s *Session) reloadLocked(ctx context.Context) error {
	p, err := s.mgr.store.Player(ctx, s.playerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stale = true
		if errs.Is(err, errs.ErrUnavailable) {
			s.mgr.markDown(ctx, err)
		}
		return errs.Wrap("session.reload", err)
	}
	s.stale = false
	s.load(p, s.mgr.now())
	return nil
}

// regenerate applies regeneration at now and reports whether energy changed.
func (s *Session) regenerate(now time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.en.Energy
	s.en, _ = energy.Regenerate(s.en, now)
	return s.snapshotLocked(), s.en.Energy != before
}

// ActiveBattle returns the battle the player is in, if any.
func (s *Session) ActiveBattle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeBattle
}

// SetActiveBattle records id as the player's battle. Only one may be active.
func (s *Session) SetActiveBattle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeBattle != "" && s.activeBattle != id {
		return errs.WrapKind("session.set_active_battle", errs.ErrStateConflict, ErrBattleActive)
	}
	s.activeBattle = id
	return nil
}

// ClearActiveBattle forgets id if it is the active battle.
func (s *Session) ClearActiveBattle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeBattle == id {
		s.activeBattle = ""
	}
}
