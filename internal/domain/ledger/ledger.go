// Package ledger tracks battle ids whose rewards have been applied.
//
// The durable guard against double rewards is the battle's terminal status;
// the ledger is the in-process fast path that rejects retries before they
// reach the store.
package ledger

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Ledger records reward claims per battle id.
type Ledger interface {
	// Claim records id and reports whether this call recorded it.
	// A false result means the reward was already claimed.
	Claim(ctx context.Context, id string) bool

	// Release forgets id so a failed application can be retried.
	Release(ctx context.Context, id string)

	Size() int64
}

// rewardLedger is a bounded set evicting the oldest claim first.
// maxSize <= 0 keeps every claim.
type rewardLedger struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// New creates an in-memory ledger.
func New(opts ...Option) Ledger {
	l := &rewardLedger{
		maxSize: 100_000,
		claims:  make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *rewardLedger) Claim(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.claims[id]; ok {
		return false
	}
	if l.maxSize > 0 && len(l.claims) >= l.maxSize {
		l.evictOldest()
	}
	l.claims[id] = l.order.PushBack(id)
	l.size.Add(1)
	return true
}

func (l *rewardLedger) Release(ctx context.Context, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.claims[id]; ok {
		l.order.Remove(el)
		delete(l.claims, id)
		l.size.Add(-1)
	}
}

// evictOldest must be called with l.mu held.
func (l *rewardLedger) evictOldest() {
	front := l.order.Front()
	if front == nil {
		return
	}
	l.order.Remove(front)
	delete(l.claims, front.Value.(string))
	l.size.Add(-1)
}

func (l *rewardLedger) Size() int64 {
	return l.size.Load()
}
