package realtime

import (
	"encoding/json"
	"time"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/session"
)

// Inbound actions.
const (
	ActionInit              = "init"
	ActionTap               = "tap"
	ActionBattleStart       = "battleStart"
	ActionBattleTurn        = "battleTurn"
	ActionBattleAutoResolve = "battleAutoResolve"
	ActionCancelMatchmaking = "cancelMatchmaking"
)

// Outbound actions not owned by the matchmaking queue.
const (
	ActionInitialized         = "initialized"
	ActionTapResult           = "tapResult"
	ActionEnergyUpdated       = "energyUpdated"
	ActionMatchmakingQueued   = "matchmakingQueued"
	ActionBattleTurnProcessed = "battleTurnProcessed"
	ActionBattleCompleted     = "battleCompleted"
	ActionWaitingForOpponent  = "waitingForOpponent"
	ActionBattleCancelled     = "battleCancelled"
	ActionError               = "error"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type initRequest struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

type battleStartRequest struct {
	BattleType    model.BattleType `json:"battle_type"`
	EnergyToSpend int              `json:"energy_to_spend"`
	Difficulty    string           `json:"difficulty"`
	OpponentID    string           `json:"opponent_id"`
}

type battleTurnRequest struct {
	BattleID string           `json:"battle_id"`
	Action   model.ActionType `json:"action"`
}

type battleRequest struct {
	BattleID string `json:"battle_id"`
}

type initializedPayload struct {
	session.Snapshot
	Created bool `json:"created"`
}

type queuedPayload struct {
	Position      int `json:"position"`
	EnergyToSpend int `json:"energy_to_spend"`
}

type waitingPayload struct {
	BattleID string `json:"battle_id"`
	Round    int    `json:"round"`
}

type cancelledPayload struct {
	BattleID string `json:"battle_id"`
	Reason   string `json:"reason"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// inbound is a decoded frame stamped with its receipt time.
type inbound struct {
	Envelope
	ReceivedAt time.Time
}
