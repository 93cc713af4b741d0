package battle

import (
	"context"
	"time"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/metrics"
)

// PvpTurn is one participant's action for the next round. ReceivedAt is the
// gateway receipt time and decides who attacks first.
type PvpTurn struct {
	BattleID   string
	PlayerID   string
	Action     model.ActionType
	ReceivedAt time.Time
}

// TurnResult is the state after a PvP submission. Waiting is true while the
// other side's action for the round is still missing.
type TurnResult struct {
	Battle  *model.Battle
	Waiting bool
}

type pendingAction struct {
	action model.ActionType
	at     time.Time
}

// pendingRound collects both sides' actions for one round.
type pendingRound struct {
	round   int
	actions map[model.Side]pendingAction
}

// SubmitPvpTurn records a player's action and resolves the round once both
// sides have submitted. A repeated submission from the same side replaces
// the action but keeps the original receipt time.
func (m *Manager) SubmitPvpTurn(ctx context.Context, turn PvpTurn) (TurnResult, error) {
	const op = "battle.submit_pvp_turn"
	if !turn.Action.Valid() {
		return TurnResult{}, errs.WrapKind(op, errs.ErrValidation, ErrInvalidAction)
	}
	unlock := m.battleLocks.Lock(turn.BattleID)
	defer unlock()

	b, err := m.loadActive(ctx, op, turn.BattleID)
	if err != nil {
		return TurnResult{}, err
	}
	if b.Type != model.BattlePvP {
		return TurnResult{}, errs.WrapKind(op, errs.ErrStateConflict, ErrWrongBattleType)
	}
	side, ok := b.SideOf(turn.PlayerID)
	if !ok {
		return TurnResult{}, errs.WrapKind(op, errs.ErrValidation, ErrNotParticipant)
	}
	if turn.ReceivedAt.IsZero() {
		turn.ReceivedAt = m.now()
	}

	next := len(b.Rounds) + 1
	pr := m.recordPending(b.ID, next, side, turn)
	userAct, userOK := pr.actions[model.SideUser]
	oppAct, oppOK := pr.actions[model.SideOpponent]
	if !userOK || !oppOK {
		return TurnResult{Battle: b, Waiting: true}, nil
	}
	m.dropPending(b.ID)

	first := model.SideUser
	if oppAct.at.Before(userAct.at) {
		first = model.SideOpponent
	}
	out := m.resolver.ResolvePvP(b.UserStats, b.OpponentStats, first)
	out.UserAction.Type = userAct.action
	out.OpponentAction.Type = oppAct.action
	m.applyRound(b, out)
	metrics.RecordRoundResolved(string(b.Type))

	if b.Finished() {
		done, err := m.complete(ctx, b)
		if err != nil {
			return TurnResult{}, err
		}
		return TurnResult{Battle: done}, nil
	}
	if err := m.store.SaveProgress(ctx, b); err != nil {
		return TurnResult{}, errs.Wrap(op, err)
	}
	return TurnResult{Battle: b}, nil
}

func (m *Manager) recordPending(battleID string, round int, side model.Side, turn PvpTurn) *pendingRound {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	pr, ok := m.pending[battleID]
	if !ok || pr.round != round {
		pr = &pendingRound{round: round, actions: make(map[model.Side]pendingAction, 2)}
		m.pending[battleID] = pr
	}
	at := turn.ReceivedAt
	if prev, ok := pr.actions[side]; ok {
		at = prev.at
	}
	pr.actions[side] = pendingAction{action: turn.Action, at: at}
	return pr
}

func (m *Manager) dropPending(battleID string) {
	m.pendingMu.Lock()
	delete(m.pending, battleID)
	m.pendingMu.Unlock()
}

// PendingRounds reports how many PvP battles are waiting on a second action.
func (m *Manager) PendingRounds() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}
