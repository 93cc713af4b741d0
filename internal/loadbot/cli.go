package loadbot

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/tapbattle/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging routes the structured logger to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "loadbot_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	logger.Get().Info(context.Background(), "logging to file", logger.String("log_file", logFile))
	return nil
}

// ShowHelp prints usage information for the load bot.
func ShowHelp() {
	os.Stdout.WriteString(`tapbattle load bot
==================

Simulates players over the realtime gateway: each bot initializes, taps,
optionally queues for PvP and fights until the battle ends. Afterwards the
HTTP API is used to check that every accepted tap was persisted.

Usage:
  go run ./cmd/loadbot [options]

Options:
  -api string
        Base URL of the HTTP API (default "http://localhost:9080")
  -ws string
        Websocket gateway URL (default "ws://localhost:9081/ws")
  -players int
        Number of simulated players (default 50)
  -taps int
        Taps per player (default 20)
  -tap-interval duration
        Pause between taps (default 60ms)
  -pvp
        Queue players for PvP after tapping
  -stake int
        Energy staked per PvP battle (default 10)
  -workers int
        Players running at once (default: number of players)
  -timeout duration
        Request and await timeout (default 15s)
  -log string
        Log file (default: loadbot_TIMESTAMP.log)
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  go run ./cmd/loadbot -players 200 -taps 50
  go run ./cmd/loadbot -players 20 -pvp -stake 20
`)
}
