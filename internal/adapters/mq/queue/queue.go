// Package queue implements the PvP matchmaking queue.
//
// Entrants wait in arrival order, one entry per player. A pass walks the
// queue and pairs each entrant with the closest waiting partner of the same
// stake and level; after the widen threshold a level difference of one is
// accepted. Paired entries are removed under the lock and battles are
// started outside it. When a start fails because of one side, the other
// side goes back to its place in the queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultWidenAfter = 30 * time.Second
)

// Outbound event names delivered through Notifier.
const (
	ActionBattleStarted        = "battleStarted"
	ActionMatchmakingUpdate    = "matchmakingUpdate"
	ActionMatchmakingCancelled = "matchmakingCancelled"
)

// Notifier delivers an event to a waiting player's connection. It must not block.
type Notifier interface {
	Notify(action string, data any)
}

// Starter creates the battle for a formed pair.
type Starter interface {
	StartMatch(ctx context.Context, a, b Entry) (*model.Battle, error)
}

// Entry is a waiting player.
type Entry struct {
	PlayerID   string
	Notifier   Notifier
	Stake      int
	Level      int
	Stats      model.ParticipantStats
	EnqueuedAt time.Time
}

// Position is the matchmakingUpdate payload.
type Position struct {
	PlayerID string `json:"-"`
	Position int    `json:"position"`
	WaitMs   int64  `json:"wait_ms"`
}

// Cancelled is the matchmakingCancelled payload.
type Cancelled struct {
	Reason string `json:"reason"`
}

// Pair is a match formed by a pass.
type Pair struct {
	A, B    Entry
	Widened bool
}

// MatchQueue holds waiting entrants in arrival order.
type MatchQueue struct {
	starter    Starter
	widenAfter time.Duration
	now        func() time.Time
	log        logger.Logger

	mu      sync.Mutex
	entries []*Entry
	closed  bool
}

// NewMatchQueue creates a queue that starts matches through starter.
func NewMatchQueue(starter Starter, opts ...Option) *MatchQueue {
	q := &MatchQueue{
		starter:    starter,
		widenAfter: defaultWidenAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.log == nil {
		q.log = logger.Get().Named("matchmaking")
	}
	metrics.UpdateMatchmakingQueueSize(0)
	return q
}

// Enqueue adds e, replacing any entry for the same player, and runs an
// immediate pass. It returns the entrant's position when still waiting, or
// 0 when the entrant was matched by that pass.
func (q *MatchQueue) Enqueue(ctx context.Context, e Entry) (int, error) {
	if e.PlayerID == "" || e.Stake <= 0 {
		return 0, fmt.Errorf("%w: player id and positive stake are required", ErrInvalidEntry)
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = q.now()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrClosed
	}
	q.removeLocked(e.PlayerID)
	q.entries = append(q.entries, &e)
	metrics.UpdateMatchmakingQueueSize(len(q.entries))
	q.mu.Unlock()

	q.log.Debug(ctx, "player queued",
		logger.PlayerID(e.PlayerID),
		logger.Int("stake", e.Stake),
		logger.Int("level", e.Level))

	q.Pass(ctx, e.EnqueuedAt)
	return q.position(e.PlayerID), nil
}

// Cancel removes the player's entry. It reports whether one existed.
func (q *MatchQueue) Cancel(_ context.Context, playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	ok := q.removeLocked(playerID)
	metrics.UpdateMatchmakingQueueSize(len(q.entries))
	return ok
}

func (q *MatchQueue) removeLocked(playerID string) bool {
	for i, e := range q.entries {
		if e.PlayerID == playerID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *MatchQueue) position(playerID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.PlayerID == playerID {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of waiting players.
func (q *MatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pass pairs waiting players and starts their battles.
func (q *MatchQueue) Pass(ctx context.Context, now time.Time) {
	pairs := q.match(now)
	for _, p := range pairs {
		q.start(ctx, p, now)
	}
}

// match removes and returns every pair formed at now.
func (q *MatchQueue) match(now time.Time) []Pair {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.entries) < 2 {
		return nil
	}
	var pairs []Pair
	taken := make(map[int]bool)
	for i, e := range q.entries {
		if taken[i] {
			continue
		}
		j, widened := q.partner(i, e, taken, now)
		if j < 0 {
			continue
		}
		taken[i], taken[j] = true, true
		pairs = append(pairs, Pair{A: *e, B: *q.entries[j], Widened: widened})
	}
	if len(pairs) == 0 {
		return nil
	}
	kept := q.entries[:0]
	for i, e := range q.entries {
		if !taken[i] {
			kept = append(kept, e)
		}
	}
	clear(q.entries[len(kept):])
	q.entries = kept
	metrics.UpdateMatchmakingQueueSize(len(q.entries))
	return pairs
}

// partner finds the best partner index for entry i, or -1.
func (q *MatchQueue) partner(i int, e *Entry, taken map[int]bool, now time.Time) (int, bool) {
	best := q.closest(i, e, taken, 0)
	if best >= 0 {
		return best, false
	}
	if now.Sub(e.EnqueuedAt) < q.widenAfter {
		return -1, false
	}
	best = q.closest(i, e, taken, 1)
	return best, best >= 0
}

// closest returns the untaken entry with the same stake, a level within
// tolerance and the smallest stat distance. Earlier entries win ties.
func (q *MatchQueue) closest(i int, e *Entry, taken map[int]bool, tolerance int) int {
	best, bestDist := -1, 0
	for j, c := range q.entries {
		if j == i || taken[j] || c.Stake != e.Stake || abs(c.Level-e.Level) > tolerance {
			continue
		}
		d := distance(e.Stats, c.Stats)
		if best < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

func distance(a, b model.ParticipantStats) int {
	return abs(a.Power-b.Power) + abs(a.Defense-b.Defense) + abs(a.Speed-b.Speed) + abs(a.InitialHealth-b.InitialHealth)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (q *MatchQueue) start(ctx context.Context, p Pair, now time.Time) {
	b, err := q.starter.StartMatch(ctx, p.A, p.B)
	if err != nil {
		metrics.RecordMatchmakingError()
		q.log.Warn(ctx, "match could not be started",
			logger.String("player_a", p.A.PlayerID),
			logger.String("player_b", p.B.PlayerID),
			logger.Error(err))
		reason := Cancelled{Reason: fmt.Sprintf("could not start battle: %v", err)}
		var blamed *battle.PlayerError
		if !errors.As(err, &blamed) {
			notify(p.A, ActionMatchmakingCancelled, reason)
			notify(p.B, ActionMatchmakingCancelled, reason)
			return
		}
		for _, e := range []Entry{p.A, p.B} {
			if e.PlayerID == blamed.PlayerID {
				notify(e, ActionMatchmakingCancelled, reason)
				continue
			}
			pos, err := q.requeue(e)
			if err != nil {
				notify(e, ActionMatchmakingCancelled, reason)
				continue
			}
			q.log.Debug(ctx, "partner requeued", logger.PlayerID(e.PlayerID), logger.Int("position", pos))
			notify(e, ActionMatchmakingUpdate, Position{
				PlayerID: e.PlayerID,
				Position: pos,
				WaitMs:   now.Sub(e.EnqueuedAt).Milliseconds(),
			})
		}
		return
	}
	metrics.RecordMatchMade(p.Widened, float64(now.Sub(p.A.EnqueuedAt).Milliseconds()))
	q.log.Info(ctx, "match started",
		logger.BattleID(b.ID),
		logger.String("player_a", p.A.PlayerID),
		logger.String("player_b", p.B.PlayerID),
		logger.Bool("widened", p.Widened))
	notify(p.A, ActionBattleStarted, battle.ViewFor(b, p.A.PlayerID))
	notify(p.B, ActionBattleStarted, battle.ViewFor(b, p.B.PlayerID))
}

// requeue puts an entry back in arrival order and returns its position. A
// player who queued again meanwhile keeps the newer entry.
func (q *MatchQueue) requeue(e Entry) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrClosed
	}
	if i := slices.IndexFunc(q.entries, func(c *Entry) bool { return c.PlayerID == e.PlayerID }); i >= 0 {
		return i + 1, nil
	}
	i := slices.IndexFunc(q.entries, func(c *Entry) bool { return c.EnqueuedAt.After(e.EnqueuedAt) })
	if i < 0 {
		i = len(q.entries)
	}
	q.entries = slices.Insert(q.entries, i, &e)
	metrics.UpdateMatchmakingQueueSize(len(q.entries))
	return i + 1, nil
}

func notify(e Entry, action string, data any) {
	if e.Notifier != nil {
		e.Notifier.Notify(action, data)
	}
}

// Positions reports each entrant's 1-based position and wait at now.
func (q *MatchQueue) Positions(now time.Time) []Position {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Position, len(q.entries))
	for i, e := range q.entries {
		out[i] = Position{PlayerID: e.PlayerID, Position: i + 1, WaitMs: now.Sub(e.EnqueuedAt).Milliseconds()}
	}
	return out
}

// NotifyPositions sends matchmakingUpdate to every waiting entrant.
func (q *MatchQueue) NotifyPositions(now time.Time) {
	q.mu.Lock()
	snapshot := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		snapshot[i] = *e
	}
	q.mu.Unlock()
	for i, e := range snapshot {
		notify(e, ActionMatchmakingUpdate, Position{
			PlayerID: e.PlayerID,
			Position: i + 1,
			WaitMs:   now.Sub(e.EnqueuedAt).Milliseconds(),
		})
	}
}

// Close cancels every waiting entrant and rejects further enqueues.
func (q *MatchQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	waiting := q.entries
	q.entries = nil
	q.mu.Unlock()
	metrics.UpdateMatchmakingQueueSize(0)
	for _, e := range waiting {
		notify(*e, ActionMatchmakingCancelled, Cancelled{Reason: "server shutting down"})
	}
	return nil
}

// IsClosed reports whether Close was called.
func (q *MatchQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
