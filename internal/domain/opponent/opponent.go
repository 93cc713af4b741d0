// Package opponent holds the ordered NPC roster and its scaling rules.
package opponent

import (
	"math"
	"strings"

	"github.com/gosimple/slug"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
)

// Difficulty names mapped to fixed roster positions.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	// DifficultyAuto derives the opponent from the player's level.
	DifficultyAuto = "auto"
)

func npc(name string, level, power, defense, health int, image string, minCoins, maxCoins, xp int) model.NPCOpponent {
	return model.NPCOpponent{
		ID:         slug.Make(name),
		Name:       name,
		Level:      level,
		Power:      power,
		Defense:    defense,
		Health:     health,
		Image:      image,
		MinCoins:   minCoins,
		MaxCoins:   maxCoins,
		Experience: xp,
	}
}

var roster = []model.NPCOpponent{
	npc("Goblin", 1, 8, 3, 50, "/images/opponents/goblin.png", 10, 20, 15),
	npc("Orc Warrior", 3, 12, 6, 80, "/images/opponents/orc.png", 20, 35, 25),
	npc("Cave Troll", 5, 18, 10, 120, "/images/opponents/troll.png", 30, 60, 40),
	npc("Forest Dragon", 8, 25, 15, 180, "/images/opponents/dragon.png", 50, 100, 65),
	npc("Ancient Guardian", 10, 35, 22, 250, "/images/opponents/guardian.png", 80, 160, 100),
}

// List returns a copy of the roster in difficulty order.
func List() []model.NPCOpponent {
	return append([]model.NPCOpponent(nil), roster...)
}

// ByID finds a roster entry by its slug id.
func ByID(id string) (model.NPCOpponent, bool) {
	for _, o := range roster {
		if o.ID == id {
			return o, true
		}
	}
	return model.NPCOpponent{}, false
}

// Select picks the unscaled opponent for a difficulty. An empty or "auto"
// difficulty uses floor(level/3) clamped to the roster.
func Select(difficulty string, playerLevel int) (model.NPCOpponent, error) {
	const op = "opponent.select"
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case DifficultyEasy:
		return roster[0], nil
	case DifficultyMedium:
		return roster[1], nil
	case DifficultyHard:
		return roster[2], nil
	case "", DifficultyAuto:
		idx := playerLevel / 3
		if idx < 0 {
			idx = 0
		}
		return roster[min(idx, len(roster)-1)], nil
	default:
		return model.NPCOpponent{}, errs.Newf(op, errs.ErrValidation, "unknown difficulty %q", difficulty)
	}
}

// Multiplier is max(1, energy/10 - 0.5).
func Multiplier(energySpent int) float64 {
	return math.Max(1, float64(energySpent)/10-0.5)
}

// Scale multiplies combat stats and rewards by the stake multiplier,
// rounding each to the nearest integer.
func Scale(o model.NPCOpponent, energySpent int) model.NPCOpponent {
	m := Multiplier(energySpent)
	scale := func(v int) int { return int(math.Round(float64(v) * m)) }
	o.Power = scale(o.Power)
	o.Defense = scale(o.Defense)
	o.Health = scale(o.Health)
	o.MinCoins = scale(o.MinCoins)
	o.MaxCoins = scale(o.MaxCoins)
	o.Experience = scale(o.Experience)
	return o
}

// Stats converts an NPC into a battle stat block. NPC speed is its level.
func Stats(o model.NPCOpponent) model.ParticipantStats {
	return model.ParticipantStats{
		InitialHealth: o.Health,
		CurrentHealth: o.Health,
		Power:         o.Power,
		Defense:       o.Defense,
		Speed:         o.Level,
	}
}
