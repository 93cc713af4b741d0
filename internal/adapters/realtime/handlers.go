package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/okian/tapbattle/internal/adapters/mq/queue"
	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/energy"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/session"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
)

func decode(in inbound, v any) error {
	if len(in.Data) == 0 {
		return errs.WrapKind("realtime.decode", errs.ErrValidation, ErrBadPayload)
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return errs.WrapKind("realtime.decode", errs.ErrValidation, ErrBadPayload)
	}
	return nil
}

func (g *Gateway) requireSession(c *Client) (*session.Session, error) {
	s := c.session()
	if s == nil {
		return nil, errs.WrapKind("realtime.session", errs.ErrValidation, ErrNotInitialized)
	}
	return s, nil
}

func (g *Gateway) handleInit(ctx context.Context, c *Client, in inbound) {
	var req initRequest
	if err := decode(in, &req); err != nil {
		c.notifyError(err)
		return
	}
	if req.PlayerID == "" {
		c.notifyError(errs.Newf("realtime.init", errs.ErrValidation, "player_id is required"))
		return
	}
	if cur := c.PlayerID(); cur != "" && cur != req.PlayerID {
		c.notifyError(errs.Newf("realtime.init", errs.ErrValidation, "connection already bound to another player"))
		return
	}
	s, snap, created, err := g.sessions.Open(ctx, c.id, req.PlayerID, req.Username)
	if err != nil {
		g.log.Warn(ctx, "session init failed",
			logger.PlayerID(req.PlayerID), logger.Error(err))
		c.notifyError(err)
		return
	}
	c.bind(req.PlayerID, s)
	g.hub.Add(req.PlayerID, c)
	c.Notify(ActionInitialized, initializedPayload{Snapshot: snap, Created: created})
}

func (g *Gateway) handleTap(ctx context.Context, c *Client) {
	s, err := g.requireSession(c)
	if err != nil {
		c.notifyError(err)
		return
	}
	snap, err := s.Tap(ctx)
	if err != nil {
		c.notifyError(err)
		return
	}
	c.Notify(ActionTapResult, snap)
}

func (g *Gateway) handleCancelMatchmaking(ctx context.Context, c *Client) {
	if _, err := g.requireSession(c); err != nil {
		c.notifyError(err)
		return
	}
	if !g.queue.Cancel(ctx, c.PlayerID()) {
		c.notifyError(errs.Newf("realtime.cancel_matchmaking", errs.ErrNotFound, "not in matchmaking queue"))
		return
	}
	c.Notify(queue.ActionMatchmakingCancelled, queue.Cancelled{Reason: "cancelled by player"})
}

func (g *Gateway) handleBattleStart(ctx context.Context, c *Client, in inbound) {
	s, err := g.requireSession(c)
	if err != nil {
		c.notifyError(err)
		return
	}
	var req battleStartRequest
	if err := decode(in, &req); err != nil {
		c.notifyError(err)
		return
	}
	busy, err := liveBattle(ctx, g.battles, s)
	if err != nil {
		c.notifyError(err)
		return
	}
	if busy {
		c.notifyError(errs.WrapKind("realtime.battle_start", errs.ErrStateConflict, ErrInBattle))
		return
	}
	switch req.BattleType {
	case model.BattlePvE, "":
		g.startPve(ctx, c, s, req)
	case model.BattlePvP:
		g.enqueuePvp(ctx, c, s, req, in)
	default:
		c.notifyError(errs.Newf("realtime.battle_start", errs.ErrValidation, "unknown battle type %q", req.BattleType))
	}
}

func (g *Gateway) startPve(ctx context.Context, c *Client, s *session.Session, req battleStartRequest) {
	var created *model.Battle
	err := g.sessions.Exclusive(ctx, []string{s.PlayerID()}, func(ctx context.Context) error {
		b, err := g.battles.StartPve(ctx, battle.PveRequest{
			PlayerID:      s.PlayerID(),
			Difficulty:    req.Difficulty,
			OpponentID:    req.OpponentID,
			EnergyToSpend: req.EnergyToSpend,
		})
		created = b
		return err
	})
	if err != nil {
		c.notifyError(err)
		return
	}
	if err := s.SetActiveBattle(created.ID); err != nil {
		c.notifyError(err)
		return
	}
	c.Notify(queue.ActionBattleStarted, created)
}

func (g *Gateway) enqueuePvp(ctx context.Context, c *Client, s *session.Session, req battleStartRequest, in inbound) {
	const op = "realtime.enqueue_pvp"
	if req.EnergyToSpend < battle.MinStake {
		c.notifyError(errs.WrapKind(op, errs.ErrValidation, battle.ErrMinimumStake))
		return
	}
	if have := s.Snapshot().Energy; have < req.EnergyToSpend {
		short := &energy.Shortfall{Needed: req.EnergyToSpend, Available: have}
		c.notifyError(&errs.Error{Op: op, Kind: errs.ErrValidation, Err: battle.ErrInsufficientEnergy,
			Msg: "player " + s.PlayerID() + ": " + short.Error()})
		return
	}
	p, err := g.players.Player(ctx, s.PlayerID())
	if err != nil {
		c.notifyError(err)
		return
	}
	avatar, ok := p.ActiveAvatar()
	if !ok {
		c.notifyError(errs.WrapKind(op, errs.ErrNotFound, battle.ErrMissingAvatar))
		return
	}
	pos, err := g.queue.Enqueue(ctx, queue.Entry{
		PlayerID:   p.ID,
		Notifier:   c,
		Stake:      req.EnergyToSpend,
		Level:      p.Level,
		Stats:      avatar.Stats(),
		EnqueuedAt: in.ReceivedAt,
	})
	if err != nil {
		c.notifyError(errs.WrapKind(op, errs.ErrUnavailable, err))
		return
	}
	if pos > 0 {
		c.Notify(ActionMatchmakingQueued, queuedPayload{Position: pos, EnergyToSpend: req.EnergyToSpend})
	}
}

func (g *Gateway) handleBattleTurn(ctx context.Context, c *Client, in inbound) {
	s, err := g.requireSession(c)
	if err != nil {
		c.notifyError(err)
		return
	}
	var req battleTurnRequest
	if err := decode(in, &req); err != nil {
		c.notifyError(err)
		return
	}
	if req.BattleID == "" {
		req.BattleID = s.ActiveBattle()
	}
	b, err := g.battles.Get(ctx, req.BattleID)
	if err != nil {
		c.notifyError(err)
		return
	}
	if b.Status.Terminal() {
		s.ClearActiveBattle(b.ID)
	}

	if b.Type != model.BattlePvP {
		done, err := g.battles.SubmitTurn(ctx, b.ID, s.PlayerID(), req.Action)
		if err != nil {
			c.notifyError(err)
			return
		}
		g.publish(ctx, done)
		return
	}

	res, err := g.battles.SubmitPvpTurn(ctx, battle.PvpTurn{
		BattleID:   b.ID,
		PlayerID:   s.PlayerID(),
		Action:     req.Action,
		ReceivedAt: in.ReceivedAt,
	})
	if err != nil {
		c.notifyError(err)
		return
	}
	if res.Waiting {
		c.Notify(ActionWaitingForOpponent, waitingPayload{BattleID: b.ID, Round: len(res.Battle.Rounds) + 1})
		return
	}
	g.publish(ctx, res.Battle)
}

func (g *Gateway) handleAutoResolve(ctx context.Context, c *Client, in inbound) {
	s, err := g.requireSession(c)
	if err != nil {
		c.notifyError(err)
		return
	}
	var req battleRequest
	if len(in.Data) > 0 {
		if err := decode(in, &req); err != nil {
			c.notifyError(err)
			return
		}
	}
	if req.BattleID == "" {
		req.BattleID = s.ActiveBattle()
	}
	done, err := g.battles.AutoResolve(ctx, req.BattleID, s.PlayerID())
	if err != nil {
		if errors.Is(err, battle.ErrNotInProgress) {
			s.ClearActiveBattle(req.BattleID)
		}
		c.notifyError(err)
		return
	}
	g.publish(ctx, done)
}

// publish sends a battle update to every participant in their own
// perspective. Finished battles are cleared from sessions, which reload to
// pick up rewards.
func (g *Gateway) publish(ctx context.Context, b *model.Battle) {
	action := ActionBattleTurnProcessed
	if b.Status.Terminal() {
		action = ActionBattleCompleted
	}
	for _, id := range participants(b) {
		if action == ActionBattleCompleted {
			if s, ok := g.sessions.ForPlayer(id); ok {
				s.ClearActiveBattle(b.ID)
				if err := s.Sync(ctx); err != nil {
					g.log.Warn(ctx, "session reload after battle failed",
						logger.PlayerID(id),
						logger.BattleID(b.ID),
						logger.Error(err))
				}
			}
		}
		g.hub.Send(id, action, battle.ViewFor(b, id))
	}
}

// liveBattle reports whether the session's active battle is still in
// progress. A battle finished or removed outside this connection is
// forgotten.
func liveBattle(ctx context.Context, battles Battles, s *session.Session) (bool, error) {
	id := s.ActiveBattle()
	if id == "" {
		return false, nil
	}
	b, err := battles.Get(ctx, id)
	switch {
	case errs.Is(err, errs.ErrNotFound):
	case err != nil:
		return true, err
	case !b.Status.Terminal():
		return true, nil
	}
	s.ClearActiveBattle(id)
	return false, nil
}

func participants(b *model.Battle) []string {
	if b.Type == model.BattlePvP && b.OpponentID != "" {
		return []string{b.PlayerID, b.OpponentID}
	}
	return []string{b.PlayerID}
}
