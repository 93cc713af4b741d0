// Package session caches each connected player's coins and energy so taps
// are answered without a store round trip.
//
// Taps accumulate in the cache and are flushed as a coin increment plus the
// latest energy. While the store is unreachable flushes are retried on a
// doubling interval capped at the configured maximum.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/okian/tapbattle/internal/adapters/mq/worker"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/keylock"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Default manager configuration constants.
const (
	defaultFlushEvery   = 5
	defaultSyncInterval = 5 * time.Second
	defaultMaxBackoff   = 60 * time.Second
	defaultTapRate      = 20
	defaultTapBurst     = 20
)

// Store is the persistence used by sessions.
type Store interface {
	// EnsurePlayer loads the player, creating it on first contact.
	EnsurePlayer(ctx context.Context, id, username string) (*model.Player, bool, error)
	Player(ctx context.Context, id string) (*model.Player, error)
	// FlushTaps adds coins and overwrites energy and its timestamp.
	FlushTaps(ctx context.Context, playerID string, coins int64, energyLeft int, at time.Time) error
}

// Submitter runs background jobs.
type Submitter interface {
	Submit(job worker.Job) bool
}

// Manager owns every live session, keyed by connection and by player.
type Manager struct {
	store        Store
	submitter    Submitter
	flushEvery   int
	syncInterval time.Duration
	maxBackoff   time.Duration
	tapRate      float64
	tapBurst     int
	now          func() time.Time
	log          logger.Logger
	loads        singleflight.Group
	// locks orders session loads against exclusive store writes per player.
	locks *keylock.Locker

	mu       sync.RWMutex
	byConn   map[string]*Session
	byPlayer map[string]*Session

	healthMu sync.Mutex
	down     bool
	backoff  time.Duration
	nextSync time.Time
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		flushEvery:   defaultFlushEvery,
		syncInterval: defaultSyncInterval,
		maxBackoff:   defaultMaxBackoff,
		tapRate:      defaultTapRate,
		tapBurst:     defaultTapBurst,
		now:          time.Now,
		locks:        keylock.New(),
		byConn:       make(map[string]*Session),
		byPlayer:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxBackoff < m.syncInterval {
		m.maxBackoff = m.syncInterval
	}
	m.backoff = m.syncInterval
	if m.log == nil {
		m.log = logger.Get().Named("session")
	}
	return m
}

type opened struct {
	session *Session
	created bool
}

// Open attaches connID to the player's session, loading or creating the
// player when no other connection holds it. Concurrent opens for the same
// player share one store load, and a load never overlaps an Exclusive write
// for that player.
func (m *Manager) Open(ctx context.Context, connID, playerID, username string) (*Session, Snapshot, bool, error) {
	const op = "session.open"
	if connID == "" || playerID == "" {
		return nil, Snapshot{}, false, errs.Newf(op, errs.ErrValidation, "connection id and player id are required")
	}
	if s, ok := m.attachExisting(connID, playerID); ok {
		return s, s.Snapshot(), false, nil
	}

	ch := m.loads.DoChan(playerID, func() (any, error) {
		return m.load(ctx, playerID, username)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, Snapshot{}, false, errs.WrapKind(op, errs.ErrUnavailable, ctx.Err())
	}
	if res.Err != nil {
		if errs.Is(res.Err, errs.ErrUnavailable) {
			m.markDown(ctx, res.Err)
		}
		return nil, Snapshot{}, false, errs.Wrap(op, res.Err)
	}
	o := res.Val.(opened)

	m.mu.Lock()
	m.detachLocked(connID)
	s, ok := m.byPlayer[playerID]
	if !ok {
		// Closed between load and attach; the loaded session is still current.
		s = o.session
		m.byPlayer[playerID] = s
	}
	s.conns[connID] = struct{}{}
	m.byConn[connID] = s
	n := len(m.byPlayer)
	m.mu.Unlock()
	metrics.UpdateActiveSessions(n)

	m.log.Debug(ctx, "session opened",
		logger.ConnID(connID),
		logger.PlayerID(playerID),
		logger.Bool("created", o.created))
	return s, s.Snapshot(), o.created, nil
}

// load reads or creates the player and registers its session while holding
// the player's lock.
func (m *Manager) load(ctx context.Context, playerID, username string) (opened, error) {
	unlock := m.locks.Lock(playerID)
	defer unlock()
	if s, ok := m.ForPlayer(playerID); ok {
		return opened{session: s}, nil
	}
	p, created, err := m.store.EnsurePlayer(ctx, playerID, username)
	if err != nil {
		return opened{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byPlayer[playerID]
	if !ok {
		s = newSession(m, p)
		m.byPlayer[playerID] = s
	}
	return opened{session: s, created: created && !ok}, nil
}

func (m *Manager) attachExisting(connID, playerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	if cur := m.byConn[connID]; cur != s {
		m.detachLocked(connID)
	}
	s.conns[connID] = struct{}{}
	m.byConn[connID] = s
	return s, true
}

// detachLocked drops connID from its session. Sessions left without
// connections stay registered until Close flushes them.
func (m *Manager) detachLocked(connID string) {
	if s, ok := m.byConn[connID]; ok {
		delete(s.conns, connID)
		delete(m.byConn, connID)
	}
}

// Get returns the session bound to connID.
func (m *Manager) Get(connID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byConn[connID]
	if !ok {
		return nil, errs.WrapKind("session.get", errs.ErrNotFound, ErrUnknownSession)
	}
	return s, nil
}

// ForPlayer returns the player's session when one is open.
func (m *Manager) ForPlayer(playerID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byPlayer[playerID]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPlayer)
}

// Close detaches connID. When it was the player's last connection the
// session is flushed once, best effort, and dropped.
func (m *Manager) Close(ctx context.Context, connID string) {
	m.mu.Lock()
	s, ok := m.byConn[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.detachLocked(connID)
	last := len(s.conns) == 0
	m.mu.Unlock()
	if !last {
		return
	}

	if err := s.Flush(ctx); err != nil {
		m.log.Warn(ctx, "final flush failed",
			logger.PlayerID(s.playerID),
			logger.Int("unsynced_taps", s.Snapshot().UnsyncedTaps),
			logger.Error(err))
	}

	m.mu.Lock()
	if len(s.conns) == 0 && m.byPlayer[s.playerID] == s {
		delete(m.byPlayer, s.playerID)
	}
	n := len(m.byPlayer)
	m.mu.Unlock()
	metrics.UpdateActiveSessions(n)
}

func (m *Manager) sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byPlayer))
	for _, s := range m.byPlayer {
		out = append(out, s)
	}
	return out
}

func (m *Manager) submit(s *Session) bool {
	if m.submitter == nil {
		go func() { _ = s.Flush(context.Background()) }()
		return true
	}
	return m.submitter.Submit(worker.Job{Name: "flush:" + s.playerID, Run: s.Flush})
}

// StoreAvailable reports whether the last store call succeeded.
func (m *Manager) StoreAvailable() bool {
	m.healthMu.Lock()
	defer m.healthMu.Unlock()
	return !m.down
}

// Backoff returns the current retry interval.
func (m *Manager) Backoff() time.Duration {
	m.healthMu.Lock()
	defer m.healthMu.Unlock()
	return m.backoff
}

// markDown records a failed store call. Failures before the scheduled retry
// do not grow the interval.
func (m *Manager) markDown(ctx context.Context, cause error) {
	now := m.now()
	m.healthMu.Lock()
	defer m.healthMu.Unlock()
	switch {
	case !m.down:
		m.down = true
		m.backoff = m.syncInterval
		m.log.Warn(ctx, "store unreachable, caching taps", logger.Error(cause))
	case now.Before(m.nextSync):
		return
	default:
		m.backoff = min(m.backoff*2, m.maxBackoff)
	}
	m.nextSync = now.Add(m.backoff)
	metrics.UpdateStoreAvailable(false)
	metrics.UpdateSyncBackoff(float64(m.backoff.Milliseconds()))
}

func (m *Manager) markUp(ctx context.Context) {
	m.healthMu.Lock()
	defer m.healthMu.Unlock()
	if m.down {
		m.log.Info(ctx, "store reachable again")
		m.nextSync = m.now().Add(m.syncInterval)
	}
	m.down = false
	m.backoff = m.syncInterval
	metrics.UpdateStoreAvailable(true)
	metrics.UpdateSyncBackoff(float64(m.backoff.Milliseconds()))
}

// SyncDue flushes dirty sessions when the sync interval (or, while the
// store is down, the retry backoff) has elapsed. It returns the number of
// sessions flushed.
func (m *Manager) SyncDue(ctx context.Context, now time.Time) int {
	m.healthMu.Lock()
	if now.Before(m.nextSync) {
		m.healthMu.Unlock()
		return 0
	}
	// While down, markDown schedules the next retry.
	if !m.down {
		m.nextSync = now.Add(m.backoff)
	}
	m.healthMu.Unlock()

	flushed := 0
	for _, s := range m.sessions() {
		if !s.Dirty() {
			continue
		}
		err := s.Flush(ctx)
		if err == nil {
			flushed++
			continue
		}
		if errs.Is(err, errs.ErrUnavailable) {
			break
		}
		m.log.Warn(ctx, "sync flush failed", logger.PlayerID(s.playerID), logger.Error(err))
	}
	return flushed
}

// Exclusive runs fn while holding the open sessions of playerIDs exclusively,
// then reloads them. Sessions are entered in player id order. Players without
// an open session are skipped; fn still runs, and a session opened for them
// meanwhile loads only after fn returned.
func (m *Manager) Exclusive(ctx context.Context, playerIDs []string, fn func(context.Context) error) error {
	ids := slices.Clone(playerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	unlock := m.locks.LockAll(ids...)
	defer unlock()

	run := fn
	if run == nil {
		run = func(context.Context) error { return nil }
	}
	for i := len(ids) - 1; i >= 0; i-- {
		s, ok := m.ForPlayer(ids[i])
		if !ok {
			continue
		}
		next := run
		run = func(ctx context.Context) error { return s.Exclusive(ctx, next) }
	}
	return run(ctx)
}

// ClearBattle forgets battleID as the active battle of the players' open
// sessions. Used when a battle finishes outside the event stream.
func (m *Manager) ClearBattle(battleID string, playerIDs ...string) {
	for _, id := range playerIDs {
		if s, ok := m.ForPlayer(id); ok {
			s.ClearActiveBattle(battleID)
		}
	}
}

// FlushAll flushes every session once, used on shutdown.
func (m *Manager) FlushAll(ctx context.Context) error {
	var all []error
	for _, s := range m.sessions() {
		if err := s.Flush(ctx); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

// Regenerate applies regeneration to every session and returns the
// snapshots whose energy changed.
func (m *Manager) Regenerate(now time.Time) []Snapshot {
	var changed []Snapshot
	for _, s := range m.sessions() {
		if snap, ok := s.regenerate(now); ok {
			changed = append(changed, snap)
		}
	}
	return changed
}
