package loadbot

import (
	"context"
	"fmt"

	"github.com/okian/tapbattle/pkg/logger"
)

type storedPlayer struct {
	ID     string `json:"id"`
	Coins  int64  `json:"coins"`
	Energy int    `json:"energy"`
}

// verifyPlayers checks that each player's stored coins cover every accepted
// tap. Battle rewards can only add to the total.
func verifyPlayers(ctx context.Context, client *HTTPClient, cfg *Config, players []player, stats *Stats) error {
	for _, p := range players {
		var stored storedPlayer
		if err := client.getData(ctx, cfg.APIURL+"/v1/players/"+p.ID, &stored); err != nil {
			stats.Mismatched.Add(1)
			logger.Get().Warn(ctx, "player lookup failed", logger.PlayerID(p.ID), logger.Error(err))
			continue
		}
		if stored.Coins < p.Accepted {
			stats.Mismatched.Add(1)
			logger.Get().Warn(ctx, "persisted coins below accepted taps",
				logger.PlayerID(p.ID),
				logger.Int64("coins", stored.Coins),
				logger.Int64("accepted", p.Accepted))
			continue
		}
		stats.Verified.Add(1)
	}
	if n := stats.Mismatched.Load(); n > 0 {
		return fmt.Errorf("%d of %d players did not persist their taps", n, len(players))
	}
	return nil
}
