package model

import "time"

// BattleType distinguishes NPC battles from player battles.
type BattleType string

const (
	BattlePvE BattleType = "pve"
	BattlePvP BattleType = "pvp"
)

// BattleStatus is the battle state machine.
type BattleStatus string

const (
	StatusPending    BattleStatus = "pending"
	StatusInProgress BattleStatus = "in_progress"
	StatusCompleted  BattleStatus = "completed"
	StatusCanceled   BattleStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s BattleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// BattleResult is set when a battle reaches a terminal status.
type BattleResult string

const (
	ResultNone      BattleResult = ""
	ResultVictory   BattleResult = "victory"
	ResultDefeat    BattleResult = "defeat"
	ResultDraw      BattleResult = "draw"
	ResultAbandoned BattleResult = "abandoned"
)

// ActionType is a combat move.
type ActionType string

const (
	ActionAttack  ActionType = "attack"
	ActionDefend  ActionType = "defend"
	ActionSpecial ActionType = "special"
)

// Valid reports whether a is a known move.
func (a ActionType) Valid() bool {
	switch a {
	case ActionAttack, ActionDefend, ActionSpecial:
		return true
	}
	return false
}

// Side names a participant from the initiator's perspective.
type Side string

const (
	SideUser     Side = "user"
	SideOpponent Side = "opponent"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideUser {
		return SideOpponent
	}
	return SideUser
}

// ParticipantStats is one side's combat block.
type ParticipantStats struct {
	InitialHealth int `json:"initial_health"`
	CurrentHealth int `json:"current_health"`
	Power         int `json:"power"`
	Defense       int `json:"defense"`
	Speed         int `json:"speed"`
}

// Aggregate is power+defense+speed.
func (p ParticipantStats) Aggregate() int {
	return p.Power + p.Defense + p.Speed
}

// Alive reports whether current health is above zero.
func (p ParticipantStats) Alive() bool {
	return p.CurrentHealth > 0
}

// BattleAction is a submitted move; the remaining fields are filled by the resolver.
type BattleAction struct {
	Type     ActionType `json:"type"`
	Damage   int        `json:"damage,omitempty"`
	Blocked  bool       `json:"blocked,omitempty"`
	Critical bool       `json:"critical,omitempty"`
}

// Round is one resolved exchange. Rounds are append-only.
type Round struct {
	Number         int          `json:"round_number"`
	UserAction     BattleAction `json:"user_action"`
	OpponentAction BattleAction `json:"opponent_action"`
	Result         string       `json:"result"`
	// MirrorResult is Result written for the opponent side of a PvP battle.
	MirrorResult  string    `json:"mirror_result,omitempty"`
	FirstAttacker Side      `json:"first_attacker,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NPCOpponent is a scripted PvE opponent, possibly scaled.
type NPCOpponent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Level      int    `json:"level"`
	Power      int    `json:"power"`
	Defense    int    `json:"defense"`
	Health     int    `json:"health"`
	Image      string `json:"image"`
	MinCoins   int    `json:"min_coins"`
	MaxCoins   int    `json:"max_coins"`
	Experience int    `json:"experience"`
}

// Battle is a single combat session oriented to the initiating player.
type Battle struct {
	ID                       string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Type                     BattleType       `gorm:"type:varchar(8);not null" json:"battle_type"`
	PlayerID                 string           `gorm:"index;not null;type:varchar(64)" json:"player_id"`
	OpponentID               string           `gorm:"index;type:varchar(64)" json:"opponent_id,omitempty"`
	Opponent                 *NPCOpponent     `gorm:"serializer:json" json:"opponent_npc,omitempty"`
	Status                   BattleStatus     `gorm:"type:varchar(16);not null" json:"status"`
	Result                   BattleResult     `gorm:"type:varchar(16)" json:"result,omitempty"`
	EnergySpent              int              `gorm:"not null" json:"energy_spent"`
	CoinsEarned              int64            `json:"coins_earned"`
	ExperienceEarned         int              `json:"experience_earned"`
	OpponentCoinsEarned      int64            `json:"opponent_coins_earned,omitempty"`
	OpponentExperienceEarned int              `json:"opponent_experience_earned,omitempty"`
	UserStats                ParticipantStats `gorm:"embedded;embeddedPrefix:user_" json:"user_stats"`
	OpponentStats            ParticipantStats `gorm:"embedded;embeddedPrefix:opponent_" json:"opponent_stats"`
	Rounds                   []Round          `gorm:"serializer:json" json:"rounds"`
	CreatedAt                time.Time        `gorm:"index" json:"created_at"`
	CompletedAt              *time.Time       `json:"completed_at,omitempty"`
}

// SideOf returns which side playerID plays, if any.
func (b *Battle) SideOf(playerID string) (Side, bool) {
	switch {
	case playerID == "":
		return "", false
	case b.PlayerID == playerID:
		return SideUser, true
	case b.Type == BattlePvP && b.OpponentID == playerID:
		return SideOpponent, true
	}
	return "", false
}

// Stats returns a pointer to the stats block of side.
func (b *Battle) Stats(side Side) *ParticipantStats {
	if side == SideOpponent {
		return &b.OpponentStats
	}
	return &b.UserStats
}

// Finished reports whether either side is out of health.
func (b *Battle) Finished() bool {
	return !b.UserStats.Alive() || !b.OpponentStats.Alive()
}

// Clone returns a deep copy safe to hand to another goroutine.
func (b *Battle) Clone() *Battle {
	if b == nil {
		return nil
	}
	c := *b
	if b.Opponent != nil {
		op := *b.Opponent
		c.Opponent = &op
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	c.Rounds = append([]Round(nil), b.Rounds...)
	return &c
}
