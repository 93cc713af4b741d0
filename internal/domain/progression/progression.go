// Package progression applies experience to avatars and levels to players.
package progression

import (
	"math"

	"github.com/okian/tapbattle/internal/domain/model"
)

// GrowthFactor scales the next threshold after each level-up.
const GrowthFactor = 1.5

// LevelUps reports how many thresholds a gain crossed.
type LevelUps int

// GainExperience adds xp to the avatar and carries any overflow. Every
// threshold crossed grants the player one level and one skill point, so a
// single large gain may level up several times.
func GainExperience(avatar *model.Avatar, player *model.Player, xp int) LevelUps {
	if avatar == nil || xp <= 0 {
		return 0
	}
	if avatar.ExperienceNeeded <= 0 {
		avatar.ExperienceNeeded = model.DefaultExperienceNeeded
	}
	avatar.Experience += xp
	var ups LevelUps
	for avatar.Experience >= avatar.ExperienceNeeded {
		avatar.Experience -= avatar.ExperienceNeeded
		avatar.ExperienceNeeded = int(math.Floor(float64(avatar.ExperienceNeeded) * GrowthFactor))
		ups++
		if player != nil {
			player.Level++
			player.SkillPoints++
		}
	}
	return ups
}
