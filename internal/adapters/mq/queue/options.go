package queue

import (
	"time"

	"github.com/okian/tapbattle/pkg/logger"
)

// Option applies a configuration option to the MatchQueue.
type Option func(*MatchQueue)

// WithWidenAfter sets the wait after which level tolerance widens to +-1.
func WithWidenAfter(d time.Duration) Option {
	return func(q *MatchQueue) {
		if d > 0 {
			q.widenAfter = d
		}
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(q *MatchQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(q *MatchQueue) {
		if l != nil {
			q.log = l
		}
	}
}
