package loadbot

import (
	"sync/atomic"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	APIURL        string        // Base URL of the HTTP API
	WSURL         string        // Websocket gateway URL
	Players       int           // Number of simulated players
	TapsPerPlayer int           // Taps each player sends
	TapInterval   time.Duration // Pause between taps
	PvP           bool          // Queue every player for PvP after tapping
	Stake         int           // Energy staked per PvP battle
	MaxRounds     int           // Turn cap per battle
	Workers       int           // Players running at once
	Timeout       time.Duration // Per request and per await timeout
	SettleDelay   time.Duration // Wait after disconnects before verification
	LogFile       string        // Log file for run output
	Verbose       bool          // Enable verbose logging
}

// Stats holds run counters. All fields are safe for concurrent use.
type Stats struct {
	PlayersStarted   atomic.Int64
	PlayersFailed    atomic.Int64
	TapsSent         atomic.Int64
	TapsAccepted     atomic.Int64
	TapsRejected     atomic.Int64
	BattlesStarted   atomic.Int64
	BattlesCompleted atomic.Int64
	BattlesCancelled atomic.Int64
	MatchTimeouts    atomic.Int64
	BusyRetries      atomic.Int64
	Verified         atomic.Int64
	Mismatched       atomic.Int64
}

// Summary is a point-in-time copy of Stats.
type Summary struct {
	PlayersStarted   int64
	PlayersFailed    int64
	TapsSent         int64
	TapsAccepted     int64
	TapsRejected     int64
	BattlesStarted   int64
	BattlesCompleted int64
	BattlesCancelled int64
	MatchTimeouts    int64
	BusyRetries      int64
	Verified         int64
	Mismatched       int64
	Duration         time.Duration
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Summary {
	return Summary{
		PlayersStarted:   s.PlayersStarted.Load(),
		PlayersFailed:    s.PlayersFailed.Load(),
		TapsSent:         s.TapsSent.Load(),
		TapsAccepted:     s.TapsAccepted.Load(),
		TapsRejected:     s.TapsRejected.Load(),
		BattlesStarted:   s.BattlesStarted.Load(),
		BattlesCompleted: s.BattlesCompleted.Load(),
		BattlesCancelled: s.BattlesCancelled.Load(),
		MatchTimeouts:    s.MatchTimeouts.Load(),
		BusyRetries:      s.BusyRetries.Load(),
		Verified:         s.Verified.Load(),
		Mismatched:       s.Mismatched.Load(),
	}
}

// player is one simulated player's outcome.
type player struct {
	ID       string
	Accepted int64
}

// Defaults applied to zero-valued settings.
const (
	defaultStake     = 10
	defaultMaxRounds = 50
	defaultTimeout   = 15 * time.Second
)

// normalize fills zero values. PvP runs need every bot online at once, so
// workers never drop below the player count there.
func (c *Config) normalize() {
	if c.Workers <= 0 || (c.PvP && c.Workers < c.Players) {
		c.Workers = c.Players
	}
	if c.Stake <= 0 {
		c.Stake = defaultStake
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
