// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Durations are expressed in milliseconds with an _ms suffix.
// - New() returns defaults; Load(ctx) layers .env, YAML and environment on top.
package config

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr is the request/response API listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// RealtimeAddr is the websocket gateway listen address.
	RealtimeAddr string `koanf:"realtime_addr"`
	// AllowedOrigins restricts websocket origins and CORS; empty allows all.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// DatabaseDriver is postgres or sqlite.
	DatabaseDriver string `koanf:"database_driver"`
	// DatabaseDSN is the driver specific connection string.
	DatabaseDSN string `koanf:"database_dsn"`
	// AutoMigrate runs schema migration on start.
	AutoMigrate bool `koanf:"auto_migrate"`
	// DatabaseMaxOpenConns bounds the postgres pool. Zero leaves the driver default.
	DatabaseMaxOpenConns int `koanf:"database_max_open_conns"`
	// DatabaseQueryLog logs slow and failing SQL through gorm.
	DatabaseQueryLog bool `koanf:"database_query_log"`
	// WSSendBuffer is the per-connection outbound queue length.
	WSSendBuffer int `koanf:"ws_send_buffer"`

	// MatchmakingIntervalMS is the period of the background matching pass.
	MatchmakingIntervalMS int `koanf:"matchmaking_interval_ms"`
	// MatchmakingWidenAfterMS is the wait after which level tolerance widens to +-1.
	MatchmakingWidenAfterMS int `koanf:"matchmaking_widen_after_ms"`
	// QueueUpdateIntervalMS is the period of queue position notifications.
	QueueUpdateIntervalMS int `koanf:"queue_update_interval_ms"`

	// FlushEveryTaps triggers an opportunistic flush after this many unsynced taps.
	FlushEveryTaps int `koanf:"flush_every_taps"`
	// SyncIntervalMS is the base store sync interval and the initial retry backoff.
	SyncIntervalMS int `koanf:"sync_interval_ms"`
	// SyncMaxBackoffMS caps the exponential retry interval.
	SyncMaxBackoffMS int `koanf:"sync_max_backoff_ms"`
	// FlushWorkers is the number of goroutines writing session flushes.
	FlushWorkers int `koanf:"flush_workers"`
	// FlushQueueSize bounds pending flush jobs.
	FlushQueueSize int `koanf:"flush_queue_size"`

	// BusyTimeoutMS force-clears a connection's busy flag after this long.
	BusyTimeoutMS int `koanf:"busy_timeout_ms"`
	// RegenBroadcastIntervalMS is the period of energy regeneration pushes.
	RegenBroadcastIntervalMS int `koanf:"regen_broadcast_interval_ms"`
	// TapRatePerSecond and TapBurst bound taps per session.
	TapRatePerSecond float64 `koanf:"tap_rate_per_second"`
	TapBurst         int     `koanf:"tap_burst"`

	// RecentBattlesLimit caps battle history queries.
	RecentBattlesLimit int `koanf:"recent_battles_limit"`
	// RewardLedgerSize bounds the in-memory record of rewarded battle ids.
	RewardLedgerSize int `koanf:"reward_ledger_size"`
	// ReferralBonusCoins is credited to a referrer per accepted referral.
	ReferralBonusCoins int64 `koanf:"referral_bonus_coins"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		RealtimeAddr:             ":9081",
		DatabaseDriver:           DriverSQLite,
		DatabaseDSN:              "file:tapbattle.db?_busy_timeout=5000",
		AutoMigrate:              true,
		WSSendBuffer:             64,
		MatchmakingIntervalMS:    1000,
		MatchmakingWidenAfterMS:  30_000,
		QueueUpdateIntervalMS:    5000,
		FlushEveryTaps:           5,
		SyncIntervalMS:           5000,
		SyncMaxBackoffMS:         60_000,
		FlushWorkers:             runtime.NumCPU(),
		FlushQueueSize:           10_000,
		BusyTimeoutMS:            10_000,
		RegenBroadcastIntervalMS: 10_000,
		TapRatePerSecond:         20,
		TapBurst:                 20,
		RecentBattlesLimit:       10,
		RewardLedgerSize:         100_000,
		ReferralBonusCoins:       500,
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	if strings.TrimSpace(c.RealtimeAddr) == "" {
		problems = append(problems, "realtime_addr must not be empty")
	}
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown database_driver %q", c.DatabaseDriver))
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		problems = append(problems, "database_dsn must not be empty")
	}
	positive := map[string]int{
		"matchmaking_interval_ms":     c.MatchmakingIntervalMS,
		"matchmaking_widen_after_ms":  c.MatchmakingWidenAfterMS,
		"queue_update_interval_ms":    c.QueueUpdateIntervalMS,
		"flush_every_taps":            c.FlushEveryTaps,
		"sync_interval_ms":            c.SyncIntervalMS,
		"busy_timeout_ms":             c.BusyTimeoutMS,
		"regen_broadcast_interval_ms": c.RegenBroadcastIntervalMS,
		"recent_battles_limit":        c.RecentBattlesLimit,
		"ws_send_buffer":              c.WSSendBuffer,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			problems = append(problems, key+" must be positive")
		}
	}
	if c.DatabaseMaxOpenConns < 0 {
		problems = append(problems, "database_max_open_conns must not be negative")
	}
	if c.SyncMaxBackoffMS < c.SyncIntervalMS {
		problems = append(problems, "sync_max_backoff_ms must be >= sync_interval_ms")
	}
	if c.TapRatePerSecond <= 0 || c.TapBurst <= 0 {
		problems = append(problems, "tap_rate_per_second and tap_burst must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Duration converts a millisecond setting to a time.Duration.
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}
