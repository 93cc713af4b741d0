// Package metrics provides Prometheus metrics for the tapbattle service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	waitBuckets      []float64
	registry         prometheus.Registerer

	// Battles
	battlesStarted   *prometheus.CounterVec
	battlesCompleted *prometheus.CounterVec
	roundsResolved   *prometheus.CounterVec
	autoResolves     prometheus.Counter
	rewardsApplied   prometheus.Counter
	rewardDuplicates prometheus.Counter
	activeBattles    prometheus.Gauge

	// Matchmaking
	matchmakingQueueSize prometheus.Gauge
	matchmakingWait      prometheus.Histogram
	matchesMade          *prometheus.CounterVec
	matchmakingErrors    prometheus.Counter

	// Sessions
	activeSessions   prometheus.Gauge
	tapsAccepted     prometheus.Counter
	tapsRejected     *prometheus.CounterVec
	flushes          *prometheus.CounterVec
	storeAvailable   prometheus.Gauge
	syncBackoff      prometheus.Gauge
	flushQueueDepth  prometheus.Gauge
	flushJobsDropped prometheus.Counter
	flushLatency     prometheus.Histogram

	// Realtime gateway
	wsConnections    prometheus.Gauge
	wsMessages       *prometheus.CounterVec
	busyRejections   prometheus.Counter
	watchdogReleases prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // service registry, no default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = newManager(withRegisterer(customRegistry))
}

// newManager creates a metrics manager and registers its collectors.
func newManager(opts ...option) *Manager {
	m := &Manager{
		namespace:        "tapbattle",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		waitBuckets:      []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 120000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.battlesStarted = m.counterVec("battles_started_total", "Battles started by type", "type")
	m.battlesCompleted = m.counterVec("battles_completed_total", "Battles reaching a terminal state by type and result", "type", "result")
	m.roundsResolved = m.counterVec("rounds_resolved_total", "Battle rounds resolved by type", "type")
	m.autoResolves = m.counter("auto_resolves_total", "Battles concluded through auto-resolve")
	m.rewardsApplied = m.counter("rewards_applied_total", "Reward applications written to the store")
	m.rewardDuplicates = m.counter("reward_duplicates_total", "Reward applications suppressed because the battle was already rewarded")
	m.activeBattles = m.gauge("active_battles", "Battles currently in progress in this process")

	m.matchmakingQueueSize = m.gauge("matchmaking_queue_size", "Players waiting for a PvP match")
	m.matchmakingWait = m.histogram("matchmaking_wait_milliseconds", "Time spent in the matchmaking queue before a match", m.waitBuckets)
	m.matchesMade = m.counterVec("matches_made_total", "PvP matches formed, by whether level tolerance was widened", "widened")
	m.matchmakingErrors = m.counter("matchmaking_errors_total", "Pairs that failed to start a battle during a matchmaking pass")

	m.activeSessions = m.gauge("active_sessions", "Live realtime sessions")
	m.tapsAccepted = m.counter("taps_accepted_total", "Taps credited to a session")
	m.tapsRejected = m.counterVec("taps_rejected_total", "Taps rejected by reason", "reason")
	m.flushes = m.counterVec("session_flushes_total", "Session flushes by outcome", "outcome")
	m.storeAvailable = m.gauge("store_available", "1 when the persistent store is reachable, 0 while in backoff")
	m.syncBackoff = m.gauge("sync_backoff_milliseconds", "Current store sync retry interval")
	m.flushQueueDepth = m.gauge("flush_queue_depth", "Pending flush jobs")
	m.flushJobsDropped = m.counter("flush_jobs_dropped_total", "Flush jobs dropped because the flush queue was full")
	m.flushLatency = m.histogram("flush_latency_milliseconds", "Latency of a session flush", m.histogramBuckets)

	m.wsConnections = m.gauge("ws_connections", "Open websocket connections")
	m.wsMessages = m.counterVec("ws_messages_total", "Websocket messages by direction and action", "direction", "action")
	m.busyRejections = m.counter("busy_rejections_total", "Events rejected because the connection was busy")
	m.watchdogReleases = m.counter("busy_watchdog_releases_total", "Busy flags force-cleared by the watchdog")

	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds", "Persistent store operation latency", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and error type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordBattleStarted counts a new battle of the given type.
func RecordBattleStarted(battleType string) {
	globalManager.battlesStarted.WithLabelValues(battleType).Inc()
	globalManager.activeBattles.Inc()
}

// RecordBattleCompleted counts a terminal transition.
func RecordBattleCompleted(battleType, result string) {
	globalManager.battlesCompleted.WithLabelValues(battleType, result).Inc()
	globalManager.activeBattles.Dec()
}

// RecordRoundResolved counts a resolved round.
func RecordRoundResolved(battleType string) {
	globalManager.roundsResolved.WithLabelValues(battleType).Inc()
}

// RecordAutoResolve counts an auto-resolved battle.
func RecordAutoResolve() { globalManager.autoResolves.Inc() }

// RecordRewardApplied counts a reward write.
func RecordRewardApplied() { globalManager.rewardsApplied.Inc() }

// RecordRewardDuplicate counts a suppressed second reward application.
func RecordRewardDuplicate() { globalManager.rewardDuplicates.Inc() }

// UpdateMatchmakingQueueSize sets the number of waiting players.
func UpdateMatchmakingQueueSize(size int) {
	globalManager.matchmakingQueueSize.Set(float64(size))
}

// RecordMatchMade records a formed match and the initiator's wait.
func RecordMatchMade(widened bool, waitMs float64) {
	label := "false"
	if widened {
		label = "true"
	}
	globalManager.matchesMade.WithLabelValues(label).Inc()
	globalManager.matchmakingWait.Observe(waitMs)
}

// RecordMatchmakingError counts a pair that could not be started.
func RecordMatchmakingError() { globalManager.matchmakingErrors.Inc() }

// UpdateActiveSessions sets the live session count.
func UpdateActiveSessions(n int) { globalManager.activeSessions.Set(float64(n)) }

// RecordTapAccepted counts a credited tap.
func RecordTapAccepted() { globalManager.tapsAccepted.Inc() }

// RecordTapRejected counts a rejected tap, e.g. "no_energy" or "rate_limited".
func RecordTapRejected(reason string) { globalManager.tapsRejected.WithLabelValues(reason).Inc() }

// RecordFlush counts a flush outcome ("ok", "unavailable", "error") and its latency.
func RecordFlush(outcome string, latencyMs float64) {
	globalManager.flushes.WithLabelValues(outcome).Inc()
	globalManager.flushLatency.Observe(latencyMs)
}

// UpdateStoreAvailable sets the store availability gauge.
func UpdateStoreAvailable(ok bool) {
	if ok {
		globalManager.storeAvailable.Set(1)
		return
	}
	globalManager.storeAvailable.Set(0)
}

// UpdateSyncBackoff sets the current retry interval.
func UpdateSyncBackoff(ms float64) { globalManager.syncBackoff.Set(ms) }

// UpdateFlushQueueDepth sets the number of pending flush jobs.
func UpdateFlushQueueDepth(n int) { globalManager.flushQueueDepth.Set(float64(n)) }

// RecordFlushJobDropped counts a job rejected by a full flush queue.
func RecordFlushJobDropped() { globalManager.flushJobsDropped.Inc() }

// UpdateWSConnections sets the number of open websocket connections.
func UpdateWSConnections(n int) { globalManager.wsConnections.Set(float64(n)) }

// RecordWSMessage counts a websocket message; direction is "in" or "out".
func RecordWSMessage(direction, action string) {
	globalManager.wsMessages.WithLabelValues(direction, action).Inc()
}

// RecordBusyRejection counts an event rejected by the busy guard.
func RecordBusyRejection() { globalManager.busyRejections.Inc() }

// RecordWatchdogRelease counts a busy flag cleared by the watchdog.
func RecordWatchdogRelease() { globalManager.watchdogReleases.Inc() }

// RecordStoreLatency observes a store operation latency.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry holding the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
