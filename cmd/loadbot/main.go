package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/tapbattle/internal/loadbot"
)

// Default configuration constants.
const (
	defaultPlayers     = 50
	defaultTaps        = 20
	defaultTapInterval = 60 * time.Millisecond
	defaultStake       = 10
	defaultTimeout     = 15 * time.Second
	defaultSettleDelay = 2 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		apiURL      = flag.String("api", "http://localhost:9080", "Base URL of the HTTP API")
		wsURL       = flag.String("ws", "ws://localhost:9081/ws", "Websocket gateway URL")
		players     = flag.Int("players", defaultPlayers, "Number of simulated players")
		taps        = flag.Int("taps", defaultTaps, "Taps per player")
		tapInterval = flag.Duration("tap-interval", defaultTapInterval, "Pause between taps")
		pvp         = flag.Bool("pvp", false, "Queue players for PvP after tapping")
		stake       = flag.Int("stake", defaultStake, "Energy staked per PvP battle")
		workers     = flag.Int("workers", 0, "Players running at once (default: number of players)")
		timeout     = flag.Duration("timeout", defaultTimeout, "Request and await timeout")
		logFile     = flag.String("log", "", "Log file (default: loadbot_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadbot.ShowHelp()
		return
	}

	if err := loadbot.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &loadbot.Config{
		APIURL:        *apiURL,
		WSURL:         *wsURL,
		Players:       *players,
		TapsPerPlayer: *taps,
		TapInterval:   *tapInterval,
		PvP:           *pvp,
		Stake:         *stake,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleDelay:   defaultSettleDelay,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}
	if _, err := loadbot.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
