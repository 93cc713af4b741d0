// Package loadbot drives simulated players against a running server and
// checks that their taps were persisted.
package loadbot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tapbattle/pkg/logger"
)

// Percentage multiplier for rate reporting.
const percentageMultiplier = 100

// Run executes the complete load run and returns its summary.
func Run(ctx context.Context, cfg *Config) (Summary, error) {
	cfg.normalize()
	start := time.Now()
	stats := &Stats{}
	log := logger.Get()

	log.Info(ctx, "starting load run",
		logger.String("api", cfg.APIURL),
		logger.String("ws", cfg.WSURL),
		logger.Int("players", cfg.Players),
		logger.Int("taps_per_player", cfg.TapsPerPlayer),
		logger.Bool("pvp", cfg.PvP),
		logger.Int("workers", cfg.Workers))

	// Step 1: Check service health
	client := newHTTPClient(cfg.Timeout)
	if err := checkServiceHealth(ctx, client, cfg); err != nil {
		return stats.Snapshot(), fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Play every bot
	players := playAll(ctx, cfg, stats)

	// Step 3: Give final flushes time to land
	log.Info(ctx, "waiting for sessions to flush", logger.Duration("delay", cfg.SettleDelay))
	select {
	case <-ctx.Done():
		return stats.Snapshot(), ctx.Err()
	case <-time.After(cfg.SettleDelay):
	}

	// Step 4: Verify persisted coins
	verifyErr := verifyPlayers(ctx, client, cfg, players, stats)

	summary := stats.Snapshot()
	summary.Duration = time.Since(start)
	displayFinalStats(ctx, summary)
	if verifyErr != nil {
		return summary, fmt.Errorf("verification failed: %w", verifyErr)
	}
	log.Info(ctx, "load run completed successfully")
	return summary, nil
}

// checkServiceHealth verifies the API is running and its store reachable.
func checkServiceHealth(ctx context.Context, client *HTTPClient, cfg *Config) error {
	resp, err := client.Get(ctx, cfg.APIURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// playAll runs cfg.Players bots with at most cfg.Workers at once.
func playAll(ctx context.Context, cfg *Config, stats *Stats) []player {
	ids := make(chan string, cfg.Players)
	for range cfg.Players {
		ids <- "bot-" + uuid.NewString()[:8]
	}
	close(ids)

	var (
		mu      sync.Mutex
		players []player
		wg      sync.WaitGroup
	)
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if ctx.Err() != nil {
					return
				}
				p, err := playOne(ctx, cfg, stats, id)
				if err != nil {
					stats.PlayersFailed.Add(1)
					logger.Get().Warn(ctx, "bot failed", logger.PlayerID(id), logger.Error(err))
				}
				if p.ID != "" {
					mu.Lock()
					players = append(players, p)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return players
}

func playOne(ctx context.Context, cfg *Config, stats *Stats, id string) (player, error) {
	b, err := dialBot(ctx, cfg, stats, id)
	if err != nil {
		return player{}, err
	}
	defer b.close()
	stats.PlayersStarted.Add(1)
	return b.play(ctx)
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, s Summary) {
	var acceptRate, tapsPerSecond float64
	if s.TapsSent > 0 {
		acceptRate = float64(s.TapsAccepted) / float64(s.TapsSent) * percentageMultiplier
	}
	if s.Duration > 0 {
		tapsPerSecond = float64(s.TapsSent) / s.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int64("players_started", s.PlayersStarted),
		logger.Int64("players_failed", s.PlayersFailed),
		logger.Int64("taps_sent", s.TapsSent),
		logger.Int64("taps_accepted", s.TapsAccepted),
		logger.Int64("taps_rejected", s.TapsRejected),
		logger.Int64("battles_started", s.BattlesStarted),
		logger.Int64("battles_completed", s.BattlesCompleted),
		logger.Int64("battles_cancelled", s.BattlesCancelled),
		logger.Int64("match_timeouts", s.MatchTimeouts),
		logger.Int64("busy_retries", s.BusyRetries),
		logger.Int64("verified", s.Verified),
		logger.Int64("mismatched", s.Mismatched),
		logger.Duration("duration", s.Duration),
		logger.Float64("accept_rate", acceptRate),
		logger.Float64("taps_per_second", tapsPerSecond))
}
