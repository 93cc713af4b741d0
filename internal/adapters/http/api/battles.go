package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
)

// BattlesHandler serves the battle lifecycle.
type BattlesHandler struct {
	battles  Battles
	sessions Sessions
	now      func() time.Time
}

// NewBattlesHandler creates a battles handler.
func NewBattlesHandler(battles Battles, sessions Sessions) *BattlesHandler {
	return &BattlesHandler{battles: battles, sessions: sessions, now: time.Now}
}

type startBattleRequest struct {
	PlayerID      string           `json:"player_id"`
	BattleType    model.BattleType `json:"battle_type"`
	OpponentID    string           `json:"opponent_id"`
	Difficulty    string           `json:"difficulty"`
	EnergyToSpend int              `json:"energy_to_spend"`
}

// HandleStart handles POST /v1/battle/start. PvP battles started here pair
// the caller with opponent_id directly, without the matchmaking queue.
func (h *BattlesHandler) HandleStart(c *fiber.Ctx) error {
	const op = "api.battle.start"
	var req startBattleRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	if err := required(op, "player_id", req.PlayerID); err != nil {
		return writeError(c, err)
	}

	var (
		b   *model.Battle
		ids []string
		run func(ctx context.Context) error
	)
	switch req.BattleType {
	case "", model.BattlePvE:
		ids = []string{req.PlayerID}
		run = func(ctx context.Context) (err error) {
			b, err = h.battles.StartPve(ctx, battle.PveRequest{
				PlayerID:      req.PlayerID,
				Difficulty:    req.Difficulty,
				OpponentID:    req.OpponentID,
				EnergyToSpend: req.EnergyToSpend,
			})
			return err
		}
	case model.BattlePvP:
		if err := required(op, "opponent_id", req.OpponentID); err != nil {
			return writeError(c, err)
		}
		ids = []string{req.PlayerID, req.OpponentID}
		run = func(ctx context.Context) (err error) {
			b, err = h.battles.StartPvp(ctx, battle.PvpRequest{
				PlayerA:       req.PlayerID,
				PlayerB:       req.OpponentID,
				EnergyToSpend: req.EnergyToSpend,
			})
			return err
		}
	default:
		return writeError(c, errs.Newf(op, errs.ErrValidation, "unknown battle type %q", req.BattleType))
	}
	if err := h.sessions.Exclusive(c.UserContext(), ids, run); err != nil {
		return writeError(c, err)
	}
	return writeOK(c, "Battle started successfully", b)
}

type turnRequest struct {
	PlayerID string           `json:"player_id"`
	Action   model.ActionType `json:"action"`
}

// HandleTurn handles POST /v1/battle/:battleId/turn. A PvP submission that
// waits for the other side answers 202.
func (h *BattlesHandler) HandleTurn(c *fiber.Ctx) error {
	const op = "api.battle.turn"
	receivedAt := h.now()
	var req turnRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	if err := required(op, "action", string(req.Action)); err != nil {
		return writeError(c, err)
	}
	ctx := c.UserContext()
	cur, err := h.battles.Get(ctx, c.Params("battleId"))
	if err != nil {
		return writeError(c, err)
	}
	playerID := req.PlayerID
	if playerID == "" {
		playerID = cur.PlayerID
	}

	var (
		b       *model.Battle
		waiting bool
	)
	err = h.sessions.Exclusive(ctx, participants(cur), func(ctx context.Context) error {
		if cur.Type == model.BattlePvP {
			res, err := h.battles.SubmitPvpTurn(ctx, battle.PvpTurn{
				BattleID:   cur.ID,
				PlayerID:   playerID,
				Action:     req.Action,
				ReceivedAt: receivedAt,
			})
			b, waiting = res.Battle, res.Waiting
			return err
		}
		var err error
		b, err = h.battles.SubmitTurn(ctx, cur.ID, playerID, req.Action)
		return err
	})
	if err != nil {
		return writeError(c, err)
	}
	h.release(b)
	if waiting {
		return c.Status(fiber.StatusAccepted).JSON(successResponse{
			Code:    fiber.StatusAccepted,
			Status:  "OK",
			Message: "Waiting for opponent",
			Data:    battle.ViewFor(b, playerID),
		})
	}
	return writeOK(c, "Battle turn processed successfully", battle.ViewFor(b, playerID))
}

type autoResolveRequest struct {
	PlayerID string `json:"player_id"`
}

// HandleAutoResolve handles POST /v1/battle/:battleId/auto-resolve.
func (h *BattlesHandler) HandleAutoResolve(c *fiber.Ctx) error {
	const op = "api.battle.auto_resolve"
	var req autoResolveRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	ctx := c.UserContext()
	cur, err := h.battles.Get(ctx, c.Params("battleId"))
	if err != nil {
		return writeError(c, err)
	}
	playerID := req.PlayerID
	if playerID == "" {
		playerID = cur.PlayerID
	}
	var b *model.Battle
	err = h.sessions.Exclusive(ctx, participants(cur), func(ctx context.Context) (err error) {
		b, err = h.battles.AutoResolve(ctx, cur.ID, playerID)
		return err
	})
	if err != nil {
		return writeError(c, err)
	}
	h.release(b)
	return writeOK(c, "Battle auto-resolved successfully", battle.ViewFor(b, playerID))
}

// HandleGet handles GET /v1/battle/:battleId.
func (h *BattlesHandler) HandleGet(c *fiber.Ctx) error {
	b, err := h.battles.Get(c.UserContext(), c.Params("battleId"))
	if err != nil {
		return writeError(c, err)
	}
	if viewer := c.Query("player_id"); viewer != "" {
		b = battle.ViewFor(b, viewer)
	}
	return writeOK(c, "Battle fetched successfully", b)
}

// HandleRecent handles GET /v1/battles/:playerId.
func (h *BattlesHandler) HandleRecent(c *fiber.Ctx) error {
	playerID := c.Params("playerId")
	list, err := h.battles.Recent(c.UserContext(), playerID)
	if err != nil {
		return writeError(c, err)
	}
	views := make([]*model.Battle, len(list))
	for i := range list {
		views[i] = battle.ViewFor(&list[i], playerID)
	}
	return writeOK(c, "User battles fetched successfully", views)
}

// HandleOpponents handles GET /v1/battle/opponents.
func (h *BattlesHandler) HandleOpponents(c *fiber.Ctx) error {
	return writeOK(c, "Opponents fetched successfully", h.battles.Opponents())
}

// release clears a finished battle from its participants' sessions.
func (h *BattlesHandler) release(b *model.Battle) {
	if b != nil && b.Status.Terminal() {
		h.sessions.ClearBattle(b.ID, participants(b)...)
	}
}

func participants(b *model.Battle) []string {
	if b.Type == model.BattlePvP && b.OpponentID != "" {
		return []string{b.PlayerID, b.OpponentID}
	}
	return []string{b.PlayerID}
}
