// Package battle owns the battle state machine: creation with energy stakes,
// turn resolution, auto-resolution, completion with rewards and cancellation.
//
// Battles are created directly in_progress and end completed or canceled.
// Turns on one battle are serialized by a per-battle lock; energy debits and
// reward writes happen inside store transactions holding per-player locks.
package battle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tapbattle/internal/domain/combat"
	"github.com/okian/tapbattle/internal/domain/energy"
	"github.com/okian/tapbattle/internal/domain/ledger"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/opponent"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/keylock"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
)

const (
	// MinStake is the smallest energy commitment accepted for a battle.
	MinStake = 10
	// MaxAutoRounds bounds AutoResolve before the battle is forced to end.
	MaxAutoRounds      = 10
	defaultRecentLimit = 10
)

// PveRequest starts a battle against an NPC. OpponentID, when set, picks a
// roster entry directly and takes precedence over Difficulty.
type PveRequest struct {
	PlayerID      string
	Difficulty    string
	OpponentID    string
	EnergyToSpend int
}

// PvpRequest starts a battle between two players, oriented to PlayerA.
type PvpRequest struct {
	PlayerA       string
	PlayerB       string
	EnergyToSpend int
}

// Manager runs battles.
type Manager struct {
	store       Store
	resolver    *combat.Resolver
	ledger      ledger.Ledger
	log         logger.Logger
	battleLocks *keylock.Locker
	now         func() time.Time
	newID       func() string
	recentLimit int

	pendingMu sync.Mutex
	pending   map[string]*pendingRound
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		resolver:    combat.New(),
		ledger:      ledger.New(),
		battleLocks: keylock.New(),
		now:         time.Now,
		newID:       uuid.NewString,
		recentLimit: defaultRecentLimit,
		pending:     make(map[string]*pendingRound),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get().Named("battle")
	}
	return m
}

// Opponents lists the PvE roster.
func (m *Manager) Opponents() []model.NPCOpponent {
	return opponent.List()
}

// Get loads a battle by id.
func (m *Manager) Get(ctx context.Context, id string) (*model.Battle, error) {
	b, err := m.store.Battle(ctx, id)
	if err != nil {
		return nil, errs.Wrap("battle.get", err)
	}
	return b, nil
}

// Recent returns the player's latest battles, newest first.
func (m *Manager) Recent(ctx context.Context, playerID string) ([]model.Battle, error) {
	const op = "battle.recent"
	if _, err := m.store.Player(ctx, playerID); err != nil {
		return nil, errs.Wrap(op, err)
	}
	list, err := m.store.RecentBattles(ctx, playerID, m.recentLimit)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return list, nil
}

// StartPve debits the stake and creates a battle against a scaled NPC.
func (m *Manager) StartPve(ctx context.Context, req PveRequest) (*model.Battle, error) {
	const op = "battle.start_pve"
	if req.EnergyToSpend < MinStake {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrMinimumStake)
	}

	var created *model.Battle
	err := m.store.InTx(ctx, []string{req.PlayerID}, func(tx Tx) error {
		p, err := tx.Player(req.PlayerID)
		if err != nil {
			return err
		}
		avatar, ok := p.ActiveAvatar()
		if !ok {
			return errs.WrapKind(op, errs.ErrNotFound, ErrMissingAvatar)
		}
		if err := idle(tx, p.ID); err != nil {
			return err
		}
		npc, err := m.pickOpponent(req, p.Level)
		if err != nil {
			return err
		}
		now := m.now()
		if err := m.debit(tx, p, req.EnergyToSpend, now); err != nil {
			return err
		}
		npc = opponent.Scale(npc, req.EnergyToSpend)
		b := &model.Battle{
			ID:            m.newID(),
			Type:          model.BattlePvE,
			PlayerID:      p.ID,
			Opponent:      &npc,
			Status:        model.StatusInProgress,
			EnergySpent:   req.EnergyToSpend,
			UserStats:     avatar.Stats(),
			OpponentStats: opponent.Stats(npc),
			Rounds:        []model.Round{},
			CreatedAt:     now,
		}
		if err := tx.CreateBattle(b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	metrics.RecordBattleStarted(string(model.BattlePvE))
	m.log.Info(ctx, "pve battle started",
		logger.BattleID(created.ID),
		logger.PlayerID(created.PlayerID),
		logger.String("opponent", created.Opponent.Name),
		logger.Int("stake", created.EnergySpent))
	return created, nil
}

func (m *Manager) pickOpponent(req PveRequest, level int) (model.NPCOpponent, error) {
	if req.OpponentID != "" {
		npc, ok := opponent.ByID(req.OpponentID)
		if !ok {
			return model.NPCOpponent{}, errs.Newf("battle.pick_opponent", errs.ErrNotFound, "opponent %s not found", req.OpponentID)
		}
		return npc, nil
	}
	return opponent.Select(req.Difficulty, level)
}

// idle fails with ErrAlreadyBattling when the player has a battle in progress.
func idle(tx Tx, playerID string) error {
	id, ok, err := tx.ActiveBattle(playerID)
	if err != nil {
		return err
	}
	if ok {
		return &errs.Error{
			Op:   "battle.idle",
			Kind: errs.ErrStateConflict,
			Err:  ErrAlreadyBattling,
			Msg:  "player " + playerID + " already battling in " + id,
		}
	}
	return nil
}

// debit regenerates p's energy to now and deducts stake.
func (m *Manager) debit(tx Tx, p *model.Player, stake int, now time.Time) error {
	state, err := energy.Spend(energy.State{
		Energy:     p.Energy,
		MaxEnergy:  p.MaxEnergy,
		Rate:       p.EnergyRegenRate,
		LastUpdate: p.LastEnergyUpdate,
	}, stake, now)
	if err != nil {
		var short *energy.Shortfall
		if errors.As(err, &short) {
			return &errs.Error{
				Op:   "battle.debit",
				Kind: errs.ErrValidation,
				Err:  ErrInsufficientEnergy,
				Msg:  "player " + p.ID + ": " + short.Error(),
			}
		}
		return err
	}
	p.Energy = state.Energy
	p.LastEnergyUpdate = state.LastUpdate
	return tx.SetEnergy(p)
}

// StartPvp debits both players and creates one battle oriented to PlayerA.
// A failure caused by one side is a *PlayerError naming that player.
func (m *Manager) StartPvp(ctx context.Context, req PvpRequest) (*model.Battle, error) {
	const op = "battle.start_pvp"
	if req.EnergyToSpend < MinStake {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrMinimumStake)
	}
	if req.PlayerA == req.PlayerB {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrSelfMatch)
	}

	var created *model.Battle
	err := m.store.InTx(ctx, []string{req.PlayerA, req.PlayerB}, func(tx Tx) error {
		a, err := tx.Player(req.PlayerA)
		if err != nil {
			return err
		}
		b, err := tx.Player(req.PlayerB)
		if err != nil {
			return err
		}
		avA, okA := a.ActiveAvatar()
		if !okA {
			return &PlayerError{PlayerID: a.ID, Err: errs.WrapKind(op, errs.ErrNotFound, ErrMissingAvatar)}
		}
		avB, okB := b.ActiveAvatar()
		if !okB {
			return &PlayerError{PlayerID: b.ID, Err: errs.WrapKind(op, errs.ErrNotFound, ErrMissingAvatar)}
		}
		now := m.now()
		for _, p := range []*model.Player{a, b} {
			if err := idle(tx, p.ID); err != nil {
				return &PlayerError{PlayerID: p.ID, Err: err}
			}
			if err := m.debit(tx, p, req.EnergyToSpend, now); err != nil {
				return &PlayerError{PlayerID: p.ID, Err: err}
			}
		}
		bt := &model.Battle{
			ID:            m.newID(),
			Type:          model.BattlePvP,
			PlayerID:      a.ID,
			OpponentID:    b.ID,
			Status:        model.StatusInProgress,
			EnergySpent:   req.EnergyToSpend,
			UserStats:     avA.Stats(),
			OpponentStats: avB.Stats(),
			Rounds:        []model.Round{},
			CreatedAt:     now,
		}
		if err := tx.CreateBattle(bt); err != nil {
			return err
		}
		created = bt
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	metrics.RecordBattleStarted(string(model.BattlePvP))
	m.log.Info(ctx, "pvp battle started",
		logger.BattleID(created.ID),
		logger.String("player_a", created.PlayerID),
		logger.String("player_b", created.OpponentID),
		logger.Int("stake", created.EnergySpent))
	return created, nil
}

// loadActive loads a battle under its lock and checks it is in progress.
func (m *Manager) loadActive(ctx context.Context, op, battleID string) (*model.Battle, error) {
	b, err := m.store.Battle(ctx, battleID)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	if b.Status != model.StatusInProgress {
		return b, &errs.Error{Op: op, Kind: errs.ErrStateConflict, Err: ErrNotInProgress,
			Msg: "battle is not in progress. Current status: " + string(b.Status)}
	}
	return b, nil
}

// SubmitTurn resolves one PvE round for the user's action. playerID is
// optional; when set it must be the battle's player.
func (m *Manager) SubmitTurn(ctx context.Context, battleID, playerID string, action model.ActionType) (*model.Battle, error) {
	const op = "battle.submit_turn"
	if !action.Valid() {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrInvalidAction)
	}
	unlock := m.battleLocks.Lock(battleID)
	defer unlock()

	b, err := m.loadActive(ctx, op, battleID)
	if err != nil {
		return nil, err
	}
	if b.Type != model.BattlePvE {
		return nil, errs.WrapKind(op, errs.ErrStateConflict, ErrWrongBattleType)
	}
	if playerID != "" && playerID != b.PlayerID {
		return nil, errs.WrapKind(op, errs.ErrValidation, ErrNotParticipant)
	}

	out := m.resolver.Resolve(b.UserStats, b.OpponentStats, action, m.resolver.OpponentAction())
	m.applyRound(b, out)
	metrics.RecordRoundResolved(string(b.Type))

	if b.Finished() {
		return m.complete(ctx, b)
	}
	if err := m.store.SaveProgress(ctx, b); err != nil {
		return nil, errs.Wrap(op, err)
	}
	return b, nil
}

// applyRound applies damage and appends the round. Rounds are only ever appended.
func (m *Manager) applyRound(b *model.Battle, out combat.Outcome) {
	combat.ApplyDamage(&b.UserStats, out.DamageToUser)
	combat.ApplyDamage(&b.OpponentStats, out.DamageToOpponent)
	b.Rounds = append(b.Rounds, model.Round{
		Number:         len(b.Rounds) + 1,
		UserAction:     out.UserAction,
		OpponentAction: out.OpponentAction,
		Result:         out.Description,
		MirrorResult:   out.MirrorDescription,
		FirstAttacker:  out.FirstAttacker,
		Timestamp:      m.now(),
	})
}

// AutoResolve simulates up to MaxAutoRounds attack rounds and completes the
// battle. When both sides survive, the side with strictly lower health is
// zeroed; equal health zeroes both and the battle is a draw.
func (m *Manager) AutoResolve(ctx context.Context, battleID, playerID string) (*model.Battle, error) {
	const op = "battle.auto_resolve"
	unlock := m.battleLocks.Lock(battleID)
	defer unlock()

	b, err := m.loadActive(ctx, op, battleID)
	if err != nil {
		return nil, err
	}
	if playerID != "" {
		if _, ok := b.SideOf(playerID); !ok {
			return nil, errs.WrapKind(op, errs.ErrValidation, ErrNotParticipant)
		}
	}
	m.dropPending(b.ID)

	for i := 0; i < MaxAutoRounds && !b.Finished(); i++ {
		var out combat.Outcome
		if b.Type == model.BattlePvP {
			first := model.SideUser
			if b.OpponentStats.Speed > b.UserStats.Speed {
				first = model.SideOpponent
			}
			out = m.resolver.ResolvePvP(b.UserStats, b.OpponentStats, first)
		} else {
			out = m.resolver.Resolve(b.UserStats, b.OpponentStats, model.ActionAttack, model.ActionAttack)
		}
		m.applyRound(b, out)
		metrics.RecordRoundResolved(string(b.Type))
	}
	if !b.Finished() {
		forceEnd(b)
	}
	metrics.RecordAutoResolve()
	return m.complete(ctx, b)
}

func forceEnd(b *model.Battle) {
	u, o := b.UserStats.CurrentHealth, b.OpponentStats.CurrentHealth
	switch {
	case u > o:
		b.OpponentStats.CurrentHealth = 0
	case o > u:
		b.UserStats.CurrentHealth = 0
	default:
		b.UserStats.CurrentHealth = 0
		b.OpponentStats.CurrentHealth = 0
	}
}

// Complete finishes a battle whose participant is out of health. Completing
// a battle that is already terminal returns it unchanged.
func (m *Manager) Complete(ctx context.Context, battleID string) (*model.Battle, error) {
	const op = "battle.complete"
	unlock := m.battleLocks.Lock(battleID)
	defer unlock()

	b, err := m.store.Battle(ctx, battleID)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	if b.Status.Terminal() {
		metrics.RecordRewardDuplicate()
		return b, nil
	}
	if !b.Finished() {
		return nil, errs.Newf(op, errs.ErrStateConflict, "battle %s has no defeated participant", battleID)
	}
	return m.complete(ctx, b)
}

// complete must be called with the battle lock held.
func (m *Manager) complete(ctx context.Context, b *model.Battle) (*model.Battle, error) {
	const op = "battle.complete"
	m.dropPending(b.ID)

	if !m.ledger.Claim(ctx, b.ID) {
		metrics.RecordRewardDuplicate()
		stored, err := m.store.Battle(ctx, b.ID)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		return stored, nil
	}

	done := b.Clone()
	done.Result = outcome(done)
	grants := m.rewards(done)
	now := m.now()
	done.Status = model.StatusCompleted
	done.CompletedAt = &now

	ids := make([]string, 0, len(grants))
	for _, g := range grants {
		ids = append(ids, g.playerID)
	}
	err := m.store.InTx(ctx, ids, func(tx Tx) error {
		if err := tx.FinishBattle(done); err != nil {
			return err
		}
		for _, g := range grants {
			if err := m.grant(tx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.ledger.Release(ctx, b.ID)
		return nil, errs.Wrap(op, err)
	}

	metrics.RecordRewardApplied()
	metrics.RecordBattleCompleted(string(done.Type), string(done.Result))
	m.log.Info(ctx, "battle completed",
		logger.BattleID(done.ID),
		logger.String("result", string(done.Result)),
		logger.Int("rounds", len(done.Rounds)),
		logger.Int64("coins", done.CoinsEarned),
		logger.Int("experience", done.ExperienceEarned))
	return done, nil
}

// outcome maps final health to a result from the initiator's perspective.
func outcome(b *model.Battle) model.BattleResult {
	userDown := !b.UserStats.Alive()
	oppDown := !b.OpponentStats.Alive()
	switch {
	case userDown && oppDown:
		return model.ResultDraw
	case userDown:
		return model.ResultDefeat
	default:
		return model.ResultVictory
	}
}

// Cancel ends an in-progress battle without rewards. The stake is not refunded.
func (m *Manager) Cancel(ctx context.Context, battleID, playerID string) (*model.Battle, error) {
	const op = "battle.cancel"
	unlock := m.battleLocks.Lock(battleID)
	defer unlock()

	b, err := m.loadActive(ctx, op, battleID)
	if err != nil {
		return nil, err
	}
	if playerID != "" {
		if _, ok := b.SideOf(playerID); !ok {
			return nil, errs.WrapKind(op, errs.ErrValidation, ErrNotParticipant)
		}
	}
	m.dropPending(b.ID)

	done := b.Clone()
	now := m.now()
	done.Status = model.StatusCanceled
	done.Result = model.ResultAbandoned
	done.CompletedAt = &now
	if err := m.store.InTx(ctx, nil, func(tx Tx) error { return tx.FinishBattle(done) }); err != nil {
		return nil, errs.Wrap(op, err)
	}
	metrics.RecordBattleCompleted(string(done.Type), string(done.Result))
	m.log.Info(ctx, "battle canceled",
		logger.BattleID(done.ID),
		logger.String("by", playerID))
	return done, nil
}
