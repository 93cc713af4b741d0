package realtime

import (
	"time"

	"github.com/okian/tapbattle/pkg/logger"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithBusyTimeout sets how long a battle action may hold a connection's
// busy guard before the watchdog clears it.
func WithBusyTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.busyTimeout = d
		}
	}
}

// WithSendBuffer sets the per-connection outbound buffer.
func WithSendBuffer(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// An empty list or "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(g *Gateway) {
		g.origins = origins
	}
}

// WithIDGenerator overrides connection id generation.
func WithIDGenerator(gen func() string) Option {
	return func(g *Gateway) {
		if gen != nil {
			g.newID = gen
		}
	}
}

// WithClock overrides the receipt clock.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}
