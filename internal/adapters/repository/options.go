package repository

import (
	"time"

	"github.com/okian/tapbattle/pkg/logger"
)

// Option configures a GormStore.
type Option func(*GormStore)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for new players.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides avatar id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *GormStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithQueryLogging enables gorm's SQL logger at warn level.
func WithQueryLogging(enabled bool) Option {
	return func(s *GormStore) {
		s.queryLog = enabled
	}
}

// WithMaxOpenConns bounds the connection pool. SQLite always uses one.
func WithMaxOpenConns(n int) Option {
	return func(s *GormStore) {
		if n > 0 {
			s.maxOpen = n
		}
	}
}
