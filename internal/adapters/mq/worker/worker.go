// Package worker runs store writes off the request path on a bounded pool.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultQueueSize    = 10_000
	defaultJobTimeout   = 10 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Job is a unit of background work, typically a session flush.
type Job struct {
	// Name identifies the job in logs, e.g. "flush:player-1".
	Name string
	Run  func(ctx context.Context) error
}

// worker drains the shared job channel until it is closed.
type worker struct {
	name   string
	jobs   <-chan Job
	pool   *Pool
	done   chan struct{}
	logger logger.Logger
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	for job := range w.jobs {
		metrics.UpdateFlushQueueDepth(len(w.jobs))
		w.process(ctx, job)
	}
}

func (w *worker) process(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.pool.jobTimeout)
	defer cancel()
	start := time.Now()
	err := safeRun(jobCtx, job)
	if err != nil {
		w.logger.Warn(ctx, "job failed",
			logger.String("job", job.Name),
			logger.Duration("took", time.Since(start)),
			logger.Error(err))
		metrics.RecordErrorByComponent("worker", "job_failed")
	}
}

// safeRun keeps a panicking job from taking the worker down.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	if job.Run == nil {
		return nil
	}
	return job.Run(ctx)
}

// Pool manages a fixed set of workers fed by a bounded channel.
type Pool struct {
	workerCount int
	queueSize   int
	jobTimeout  time.Duration

	jobs    chan Job
	workers []*worker

	mu      sync.RWMutex
	closed  bool
	started bool

	logger logger.Logger
}

// NewPool creates a worker pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		jobTimeout:  defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}
	p.jobs = make(chan Job, p.queueSize)
	p.workers = make([]*worker, p.workerCount)
	for i := range p.workers {
		name := "worker-" + strconv.Itoa(i)
		p.workers[i] = &worker{
			name:   name,
			jobs:   p.jobs,
			pool:   p,
			done:   make(chan struct{}),
			logger: p.logger.Named(name),
		}
	}
	metrics.UpdateFlushQueueDepth(0)
	return p
}

// Start launches the workers. Jobs run with a context detached from ctx's
// cancellation so shutdown can drain them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Submit enqueues job without blocking. It returns false when the pool is
// stopped or the queue is full.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		metrics.UpdateFlushQueueDepth(len(p.jobs))
		return true
	default:
		metrics.RecordFlushJobDropped()
		return false
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Stop rejects new jobs, lets workers drain the queue and waits for them.
func (p *Pool) Stop() {
	_ = p.Shutdown(context.Background())
}

// Shutdown is Stop bounded by ctx and the pool shutdown timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.jobs)
	p.mu.Unlock()
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	return nil
}
