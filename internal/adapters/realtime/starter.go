package realtime

import (
	"context"

	"github.com/okian/tapbattle/internal/adapters/mq/queue"
	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/session"
	"github.com/okian/tapbattle/pkg/errs"
)

// MatchStarter starts PvP battles for pairs formed by the matchmaking queue.
// Both players' sessions are flushed before the stake is debited and
// reloaded afterwards. Failures caused by one side carry a
// *battle.PlayerError naming it.
type MatchStarter struct {
	sessions *session.Manager
	battles  Battles
}

// NewMatchStarter creates a queue.Starter over sessions and battles.
func NewMatchStarter(sessions *session.Manager, battles Battles) *MatchStarter {
	return &MatchStarter{sessions: sessions, battles: battles}
}

var _ queue.Starter = (*MatchStarter)(nil)

// StartMatch implements queue.Starter.
func (m *MatchStarter) StartMatch(ctx context.Context, a, b queue.Entry) (*model.Battle, error) {
	const op = "realtime.start_match"
	sa, okA := m.sessions.ForPlayer(a.PlayerID)
	sb, okB := m.sessions.ForPlayer(b.PlayerID)
	switch {
	case !okA && !okB:
		return nil, errs.WrapKind(op, errs.ErrNotFound, ErrPlayerOffline)
	case !okA:
		return nil, blame(a.PlayerID, errs.WrapKind(op, errs.ErrNotFound, ErrPlayerOffline))
	case !okB:
		return nil, blame(b.PlayerID, errs.WrapKind(op, errs.ErrNotFound, ErrPlayerOffline))
	}
	for _, s := range []*session.Session{sa, sb} {
		busy, err := liveBattle(ctx, m.battles, s)
		if err != nil {
			return nil, errs.Wrap(op, err)
		}
		if busy {
			return nil, blame(s.PlayerID(), errs.WrapKind(op, errs.ErrStateConflict, ErrInBattle))
		}
	}

	var created *model.Battle
	err := m.sessions.Exclusive(ctx, []string{a.PlayerID, b.PlayerID}, func(ctx context.Context) error {
		bt, err := m.battles.StartPvp(ctx, battle.PvpRequest{
			PlayerA:       a.PlayerID,
			PlayerB:       b.PlayerID,
			EnergyToSpend: a.Stake,
		})
		created = bt
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	if err := sa.SetActiveBattle(created.ID); err != nil {
		_, _ = m.battles.Cancel(ctx, created.ID, "")
		return nil, blame(a.PlayerID, err)
	}
	if err := sb.SetActiveBattle(created.ID); err != nil {
		sa.ClearActiveBattle(created.ID)
		_, _ = m.battles.Cancel(ctx, created.ID, "")
		return nil, blame(b.PlayerID, err)
	}
	return created, nil
}

func blame(playerID string, err error) error {
	return &battle.PlayerError{PlayerID: playerID, Err: err}
}
