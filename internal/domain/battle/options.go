package battle

import (
	"time"

	"github.com/okian/tapbattle/internal/domain/combat"
	"github.com/okian/tapbattle/internal/domain/ledger"
	"github.com/okian/tapbattle/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithResolver sets the combat resolver.
func WithResolver(r *combat.Resolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithLedger sets the reward ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(m *Manager) {
		if l != nil {
			m.ledger = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRecentLimit caps Recent results.
func WithRecentLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.recentLimit = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides battle id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}
