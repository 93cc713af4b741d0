package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
)

// PlayersHandler serves player records.
type PlayersHandler struct {
	players  Players
	tasks    Tasks
	sessions Sessions
	log      logger.Logger
}

// NewPlayersHandler creates a players handler. tasks may be nil, in which
// case referral codes are rejected as unavailable.
func NewPlayersHandler(players Players, tasks Tasks, sessions Sessions, log logger.Logger) *PlayersHandler {
	return &PlayersHandler{players: players, tasks: tasks, sessions: sessions, log: log}
}

type ensurePlayerRequest struct {
	PlayerID     string `json:"player_id"`
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

type ensurePlayerResponse struct {
	Player     *model.Player `json:"player"`
	Created    bool          `json:"created"`
	ReferrerID string        `json:"referrer_id,omitempty"`
}

// HandleEnsure handles POST /v1/players. A referral code is applied once, to
// a player that was not referred before.
func (h *PlayersHandler) HandleEnsure(c *fiber.Ctx) error {
	const op = "api.players.ensure"
	var req ensurePlayerRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	if err := required(op, "player_id", req.PlayerID); err != nil {
		return writeError(c, err)
	}
	if req.ReferralCode != "" && h.tasks == nil {
		return writeError(c, errs.NewKind(op, errs.ErrUnavailable))
	}
	ctx := c.UserContext()
	p, created, err := h.players.EnsurePlayer(ctx, req.PlayerID, req.Username)
	if err != nil {
		return writeError(c, err)
	}
	resp := ensurePlayerResponse{Player: p, Created: created}
	if req.ReferralCode != "" && p.ReferredBy == "" {
		var referrer *model.Player
		err := h.sessions.Exclusive(ctx, []string{p.ID}, func(ctx context.Context) error {
			var err error
			referrer, err = h.tasks.ApplyReferral(ctx, p.ID, req.ReferralCode)
			return err
		})
		if err != nil {
			return writeError(c, err)
		}
		// The bonus went to the referrer; refresh their live session too.
		if err := h.sessions.Exclusive(ctx, []string{referrer.ID}, nil); err != nil {
			h.log.Warn(ctx, "referrer session reload failed",
				logger.PlayerID(referrer.ID),
				logger.Error(err))
		}
		resp.ReferrerID = referrer.ID
		if p, err = h.players.Player(ctx, p.ID); err != nil {
			return writeError(c, err)
		}
		resp.Player = p
	}
	message := "Player fetched successfully"
	if created {
		message = "Player created successfully"
	}
	return writeOK(c, message, resp)
}

// HandleGet handles GET /v1/players/:playerId.
func (h *PlayersHandler) HandleGet(c *fiber.Ctx) error {
	p, err := h.players.Player(c.UserContext(), c.Params("playerId"))
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, "Player fetched successfully", p)
}

type selectAvatarRequest struct {
	AvatarID string `json:"avatar_id"`
}

// HandleSelectAvatar handles POST /v1/players/:playerId/avatar.
func (h *PlayersHandler) HandleSelectAvatar(c *fiber.Ctx) error {
	const op = "api.players.select_avatar"
	var req selectAvatarRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	if err := required(op, "avatar_id", req.AvatarID); err != nil {
		return writeError(c, err)
	}
	p, err := h.players.SelectAvatar(c.UserContext(), c.Params("playerId"), req.AvatarID)
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, "Avatar selected successfully", p)
}
