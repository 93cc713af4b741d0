package ledger

// Option applies a configuration option to the ledger.
type Option func(*rewardLedger)

// WithMaxSize bounds the number of remembered claims.
// maxSize <= 0 disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(l *rewardLedger) {
		l.maxSize = maxSize
	}
}
