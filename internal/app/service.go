// Package service assembles the battle backend: store, battle manager,
// sessions, flush pool, matchmaking queue, realtime gateway and the
// periodic jobs that drive them.
package service

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/okian/tapbattle/internal/adapters/http/api"
	"github.com/okian/tapbattle/internal/adapters/mq/queue"
	"github.com/okian/tapbattle/internal/adapters/mq/worker"
	"github.com/okian/tapbattle/internal/adapters/realtime"
	"github.com/okian/tapbattle/internal/adapters/repository"
	"github.com/okian/tapbattle/internal/config"
	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/ledger"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/internal/session"
	"github.com/okian/tapbattle/pkg/logger"
)

const statsTimeout = 2 * time.Second

// ErrNotStarted is returned by accessors used before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every long-lived component.
type Service struct {
	mu sync.RWMutex

	// Configuration
	driver           string
	dsn              string
	autoMigrate      bool
	maxOpenConns     int
	queryLog         bool
	sendBuffer       int
	matchInterval    time.Duration
	widenAfter       time.Duration
	positionInterval time.Duration
	flushEvery       int
	syncInterval     time.Duration
	maxBackoff       time.Duration
	flushWorkers     int
	flushQueueSize   int
	busyTimeout      time.Duration
	regenInterval    time.Duration
	tapRate          float64
	tapBurst         int
	recentLimit      int
	ledgerSize       int
	referralBonus    int64
	origins          []string

	// Components
	store    *repository.GormStore
	battles  *battle.Manager
	tasks    *tasks.Service
	pool     *worker.Pool
	sessions *session.Manager
	queue    *queue.MatchQueue
	gateway  *realtime.Gateway
	sched    gocron.Scheduler

	// State
	started bool
	cancel  context.CancelFunc
	now     func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDatabase selects the store driver and DSN.
func WithDatabase(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" && dsn != "" {
			s.driver, s.dsn = driver, dsn
		}
	}
}

// WithDatabasePool bounds the store's open connections and toggles SQL logging.
func WithDatabasePool(maxOpen int, queryLog bool) Option {
	return func(s *Service) {
		if maxOpen > 0 {
			s.maxOpenConns = maxOpen
		}
		s.queryLog = queryLog
	}
}

// WithSendBuffer sets the outbound queue length of each websocket connection.
func WithSendBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithAutoMigrate runs schema migration on Start.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Service) {
		s.autoMigrate = enabled
	}
}

// WithMatchmaking sets the pass period and the level widening threshold.
func WithMatchmaking(interval, widenAfter time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.matchInterval = interval
		}
		if widenAfter > 0 {
			s.widenAfter = widenAfter
		}
	}
}

// WithQueueUpdateInterval sets how often waiting players get their position.
func WithQueueUpdateInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.positionInterval = d
		}
	}
}

// WithFlushEvery sets the unsynced tap count that triggers a flush.
func WithFlushEvery(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.flushEvery = n
		}
	}
}

// WithSync sets the store sync interval and the retry backoff cap.
func WithSync(interval, maxBackoff time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.syncInterval = interval
		}
		if maxBackoff > 0 {
			s.maxBackoff = maxBackoff
		}
	}
}

// WithFlushPool sizes the flush worker pool.
func WithFlushPool(workers, queueSize int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.flushWorkers = workers
		}
		if queueSize > 0 {
			s.flushQueueSize = queueSize
		}
	}
}

// WithBusyTimeout sets the per-connection busy watchdog.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithRegenInterval sets how often regenerated energy is pushed.
func WithRegenInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.regenInterval = d
		}
	}
}

// WithTapRate bounds taps per session.
func WithTapRate(perSecond float64, burst int) Option {
	return func(s *Service) {
		if perSecond > 0 && burst > 0 {
			s.tapRate, s.tapBurst = perSecond, burst
		}
	}
}

// WithRecentBattlesLimit caps battle history queries.
func WithRecentBattlesLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// WithRewardLedgerSize bounds the in-memory reward ledger.
func WithRewardLedgerSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ledgerSize = n
		}
	}
}

// WithReferralBonus sets the coins paid to a referrer.
func WithReferralBonus(coins int64) Option {
	return func(s *Service) {
		if coins >= 0 {
			s.referralBonus = coins
		}
	}
}

// WithAllowedOrigins restricts websocket and CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Service) {
		s.origins = origins
	}
}

// WithClock overrides the time source used by periodic jobs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// OptionsFromConfig maps cfg onto service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN),
		WithAutoMigrate(cfg.AutoMigrate),
		WithDatabasePool(cfg.DatabaseMaxOpenConns, cfg.DatabaseQueryLog),
		WithSendBuffer(cfg.WSSendBuffer),
		WithMatchmaking(config.Duration(cfg.MatchmakingIntervalMS), config.Duration(cfg.MatchmakingWidenAfterMS)),
		WithQueueUpdateInterval(config.Duration(cfg.QueueUpdateIntervalMS)),
		WithFlushEvery(cfg.FlushEveryTaps),
		WithSync(config.Duration(cfg.SyncIntervalMS), config.Duration(cfg.SyncMaxBackoffMS)),
		WithFlushPool(cfg.FlushWorkers, cfg.FlushQueueSize),
		WithBusyTimeout(config.Duration(cfg.BusyTimeoutMS)),
		WithRegenInterval(config.Duration(cfg.RegenBroadcastIntervalMS)),
		WithTapRate(cfg.TapRatePerSecond, cfg.TapBurst),
		WithRecentBattlesLimit(cfg.RecentBattlesLimit),
		WithRewardLedgerSize(cfg.RewardLedgerSize),
		WithReferralBonus(cfg.ReferralBonusCoins),
		WithAllowedOrigins(cfg.AllowedOrigins),
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:           config.DriverSQLite,
		dsn:              "file:tapbattle.db?_busy_timeout=5000",
		autoMigrate:      true,
		matchInterval:    time.Second,
		widenAfter:       30 * time.Second,
		positionInterval: 5 * time.Second,
		flushEvery:       5,
		syncInterval:     5 * time.Second,
		maxBackoff:       time.Minute,
		flushWorkers:     runtime.NumCPU(),
		flushQueueSize:   10_000,
		busyTimeout:      10 * time.Second,
		regenInterval:    10 * time.Second,
		tapRate:          20,
		tapBurst:         20,
		recentLimit:      10,
		ledgerSize:       100_000,
		referralBonus:    500,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, builds every component and starts the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting battle service...", logger.String("driver", s.driver))

	store, err := repository.Open(ctx, s.driver, s.dsn,
		repository.WithLogger(s.logger.Named("repository")),
		repository.WithMaxOpenConns(s.maxOpenConns),
		repository.WithQueryLogging(s.queryLog),
	)
	if err != nil {
		return err
	}
	if s.autoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.store = store
	s.battles = battle.NewManager(store,
		battle.WithLedger(ledger.New(ledger.WithMaxSize(s.ledgerSize))),
		battle.WithRecentLimit(s.recentLimit),
		battle.WithLogger(s.logger.Named("battle")),
	)
	s.tasks = tasks.NewService(store,
		tasks.WithReferralBonus(s.referralBonus),
		tasks.WithLogger(s.logger.Named("tasks")),
	)
	s.pool = worker.NewPool(
		worker.WithWorkers(s.flushWorkers),
		worker.WithQueueSize(s.flushQueueSize),
		worker.WithLogger(s.logger.Named("flush-pool")),
	)
	s.pool.Start(runCtx)
	s.sessions = session.NewManager(store,
		session.WithSubmitter(s.pool),
		session.WithFlushEvery(s.flushEvery),
		session.WithSyncInterval(s.syncInterval),
		session.WithMaxBackoff(s.maxBackoff),
		session.WithTapRate(s.tapRate, s.tapBurst),
		session.WithLogger(s.logger.Named("session")),
	)
	s.queue = queue.NewMatchQueue(realtime.NewMatchStarter(s.sessions, s.battles),
		queue.WithWidenAfter(s.widenAfter),
		queue.WithLogger(s.logger.Named("matchmaking")),
	)
	s.gateway = realtime.NewGateway(s.sessions, s.battles, store, s.queue,
		realtime.WithBusyTimeout(s.busyTimeout),
		realtime.WithSendBuffer(s.sendBuffer),
		realtime.WithAllowedOrigins(s.origins),
		realtime.WithLogger(s.logger.Named("realtime")),
	)

	sched, err := s.schedule(runCtx)
	if err != nil {
		cancel()
		_ = s.gateway.Close()
		s.pool.Stop()
		_ = store.Close()
		return err
	}
	s.sched = sched
	s.sched.Start()

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "battle service started",
		logger.Int("flush_workers", s.flushWorkers),
		logger.Duration("matchmaking_interval", s.matchInterval),
		logger.Duration("sync_interval", s.syncInterval))
	return nil
}

// schedule registers the periodic jobs. Each runs in singleton mode so a
// slow pass is skipped rather than stacked.
func (s *Service) schedule(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	jobs := []struct {
		name  string
		every time.Duration
		run   func()
	}{
		{"matchmaking-pass", s.matchInterval, func() { s.queue.Pass(ctx, s.now()) }},
		{"queue-positions", s.positionInterval, func() { s.queue.NotifyPositions(s.now()) }},
		{"energy-regen", s.regenInterval, func() { s.gateway.BroadcastEnergy(s.sessions.Regenerate(s.now())) }},
		// SyncDue decides itself whether the interval or retry backoff elapsed.
		{"store-sync", min(time.Second, s.syncInterval), func() { s.sessions.SyncDue(ctx, s.now()) }},
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}
	return sched, nil
}

// Stop gracefully shuts down the service. Waiting players are cancelled,
// connections closed and every session flushed before the store closes.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping battle service...")

	if err := s.sched.Shutdown(); err != nil {
		s.logger.Warn(ctx, "scheduler shutdown failed", logger.Error(err))
	}
	_ = s.queue.Close()
	_ = s.gateway.Close()
	if err := s.sessions.FlushAll(ctx); err != nil {
		s.logger.Error(ctx, "final session flush failed", logger.Error(err))
	}
	s.pool.Stop()
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "battle service stopped")
}

// Gateway returns the websocket handler.
func (s *Service) Gateway() (*realtime.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.gateway, nil
}

// APIDependencies returns the handlers' collaborators.
func (s *Service) APIDependencies() (api.Dependencies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return api.Dependencies{}, ErrNotStarted
	}
	return api.Dependencies{
		Players:  s.store,
		Battles:  s.battles,
		Tasks:    s.tasks,
		Sessions: s.sessions,
		Store:    s.store,
		Stats:    s,
	}, nil
}

// AllowedOrigins returns the CORS allow list in fiber's format.
func (s *Service) AllowedOrigins() string {
	if len(s.origins) == 0 {
		return "*"
	}
	return strings.Join(s.origins, ",")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"flush_workers": s.flushWorkers,
		"driver":        s.driver,
	}
	if !s.started {
		return stats
	}
	stats["active_sessions"] = s.sessions.Len()
	stats["connections"] = s.gateway.Connections()
	stats["matchmaking_queue"] = s.queue.Len()
	stats["flush_pending"] = s.pool.Pending()
	stats["store_available"] = s.sessions.StoreAvailable()
	stats["sync_backoff_ms"] = s.sessions.Backoff().Milliseconds()
	stats["pending_pvp_rounds"] = s.battles.PendingRounds()

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	if counts, err := s.store.Counts(ctx); err == nil {
		stats["players"] = counts.Players
		stats["battles"] = counts.Battles
		stats["active_battles"] = counts.ActiveBattles
	}
	return stats
}
