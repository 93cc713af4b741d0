package battle

import "github.com/okian/tapbattle/internal/domain/model"

// Mirror returns a copy of b as seen by its PvP opponent: stats, rewards,
// round actions, round text and first attacker are swapped. b is not modified.
func Mirror(b *model.Battle) *model.Battle {
	if b == nil {
		return nil
	}
	v := b.Clone()
	v.PlayerID, v.OpponentID = b.OpponentID, b.PlayerID
	v.UserStats, v.OpponentStats = b.OpponentStats, b.UserStats
	v.CoinsEarned, v.OpponentCoinsEarned = b.OpponentCoinsEarned, b.CoinsEarned
	v.ExperienceEarned, v.OpponentExperienceEarned = b.OpponentExperienceEarned, b.ExperienceEarned
	switch b.Result {
	case model.ResultVictory:
		v.Result = model.ResultDefeat
	case model.ResultDefeat:
		v.Result = model.ResultVictory
	}
	for i, r := range b.Rounds {
		v.Rounds[i].UserAction, v.Rounds[i].OpponentAction = r.OpponentAction, r.UserAction
		v.Rounds[i].Result, v.Rounds[i].MirrorResult = r.MirrorResult, r.Result
		if r.FirstAttacker != "" {
			v.Rounds[i].FirstAttacker = r.FirstAttacker.Other()
		}
	}
	return v
}

// ViewFor orients b for playerID. Only the PvP opponent gets a mirrored copy.
func ViewFor(b *model.Battle, playerID string) *model.Battle {
	if b != nil && b.Type == model.BattlePvP && playerID != "" && playerID == b.OpponentID {
		return Mirror(b)
	}
	return b
}
