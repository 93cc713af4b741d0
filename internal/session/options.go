package session

import (
	"time"

	"github.com/okian/tapbattle/pkg/logger"
)

// Option configures a Manager.
type Option func(*Manager)

// WithFlushEvery sets the number of unsynced taps that triggers a flush.
func WithFlushEvery(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.flushEvery = n
		}
	}
}

// WithSyncInterval sets the periodic sync interval and initial retry backoff.
func WithSyncInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.syncInterval = d
		}
	}
}

// WithMaxBackoff caps the retry interval while the store is unreachable.
func WithMaxBackoff(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxBackoff = d
		}
	}
}

// WithTapRate limits taps per session to perSecond with the given burst.
func WithTapRate(perSecond float64, burst int) Option {
	return func(m *Manager) {
		if perSecond > 0 && burst > 0 {
			m.tapRate, m.tapBurst = perSecond, burst
		}
	}
}

// WithSubmitter runs opportunistic flushes on a worker pool.
func WithSubmitter(s Submitter) Option {
	return func(m *Manager) {
		m.submitter = s
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

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}
