package battle

import (
	"math"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/progression"
)

const (
	pvpCoinsPerEnergy = 5
	pvpXPPerEnergy    = 2
	consolationShare  = 0.2
)

// outcomeFactor scales rewards by result.
func outcomeFactor(r model.BattleResult) float64 {
	switch r {
	case model.ResultVictory:
		return 1.0
	case model.ResultDraw:
		return 0.5
	case model.ResultDefeat:
		return 0.2
	}
	return 0
}

type grant struct {
	playerID string
	coins    int64
	xp       int
}

// rewards fills the reward fields of b and returns the per-player grants.
func (m *Manager) rewards(b *model.Battle) []grant {
	if b.Type == model.BattlePvP {
		return pvpRewards(b)
	}
	return m.pveRewards(b)
}

// pveRewards draws base coins from the scaled opponent's range and scales
// coins and experience by max(1, stake/10) and the outcome factor.
func (m *Manager) pveRewards(b *model.Battle) []grant {
	var baseCoins, baseXP int
	if b.Opponent != nil {
		baseCoins = m.resolver.Roll(b.Opponent.MinCoins, b.Opponent.MaxCoins)
		baseXP = b.Opponent.Experience
	}
	scale := math.Max(1, float64(b.EnergySpent)/10) * outcomeFactor(b.Result)
	b.CoinsEarned = int64(math.Floor(float64(baseCoins) * scale))
	b.ExperienceEarned = int(math.Floor(float64(baseXP) * scale))
	return []grant{{playerID: b.PlayerID, coins: b.CoinsEarned, xp: b.ExperienceEarned}}
}

// pvpRewards pays the winner the full stake formula and the loser 20% of the
// winner's earnings. A draw pays each side the halved formula.
func pvpRewards(b *model.Battle) []grant {
	baseCoins := float64(b.EnergySpent * pvpCoinsPerEnergy)
	baseXP := float64(b.EnergySpent * pvpXPPerEnergy)

	var userCoins, oppCoins int64
	var userXP, oppXP int
	switch b.Result {
	case model.ResultDraw:
		f := outcomeFactor(model.ResultDraw)
		userCoins, oppCoins = int64(math.Floor(baseCoins*f)), int64(math.Floor(baseCoins*f))
		userXP, oppXP = int(math.Floor(baseXP*f)), int(math.Floor(baseXP*f))
	case model.ResultVictory:
		userCoins, userXP = int64(baseCoins), int(baseXP)
		oppCoins = int64(math.Floor(float64(userCoins) * consolationShare))
		oppXP = int(math.Floor(float64(userXP) * consolationShare))
	case model.ResultDefeat:
		oppCoins, oppXP = int64(baseCoins), int(baseXP)
		userCoins = int64(math.Floor(float64(oppCoins) * consolationShare))
		userXP = int(math.Floor(float64(oppXP) * consolationShare))
	}
	b.CoinsEarned, b.ExperienceEarned = userCoins, userXP
	b.OpponentCoinsEarned, b.OpponentExperienceEarned = oppCoins, oppXP
	return []grant{
		{playerID: b.PlayerID, coins: userCoins, xp: userXP},
		{playerID: b.OpponentID, coins: oppCoins, xp: oppXP},
	}
}

// grant credits coins and experience to the player's active avatar.
func (m *Manager) grant(tx Tx, g grant) error {
	p, err := tx.Player(g.playerID)
	if err != nil {
		return err
	}
	avatar, ok := p.ActiveAvatar()
	if ok {
		progression.GainExperience(avatar, p, g.xp)
	}
	return tx.Reward(p, avatar, g.coins)
}
