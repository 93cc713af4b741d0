package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/tapbattle/internal/adapters/http/api"
	app "github.com/okian/tapbattle/internal/app"
	"github.com/okian/tapbattle/internal/config"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
)

// Listener and background loop timings.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// /metrics serves the service registry only.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "service exited", logger.Error(err))
		os.Exit(1)
	}
}

// run starts the service and both listeners and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	configureLogging(ctx, log, cfg)

	svc := app.New(append(app.OptionsFromConfig(cfg), app.WithLogger(log))...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	apiApp, wsServer, err := newServers(svc, cfg)
	if err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "starting HTTP API", logger.String("addr", cfg.Addr))
		if err := apiApp.Listen(cfg.Addr); err != nil {
			errCh <- err
		}
	}()
	go func() {
		log.Info(ctx, "starting realtime gateway", logger.String("addr", cfg.RealtimeAddr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down servers...")
	case runErr = <-errCh:
		log.Error(ctx, "listener failed", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error(ctx, "HTTP API shutdown failed", logger.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "realtime gateway shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "servers stopped")
	return runErr
}

func configureLogging(ctx context.Context, log logger.Logger, cfg *config.Config) {
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		log.Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
}

// newServers builds the fiber API and the websocket server for a started service.
func newServers(svc *app.Service, cfg *config.Config) (*fiber.App, *http.Server, error) {
	deps, err := svc.APIDependencies()
	if err != nil {
		return nil, nil, err
	}
	gw, err := svc.Gateway()
	if err != nil {
		return nil, nil, err
	}
	apiApp := api.NewServer(deps,
		api.WithLogger(logger.Get().Named("api")),
		api.WithAllowedOrigins(svc.AllowedOrigins()),
	).App()

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("/", gw)
	wsServer := &http.Server{
		Addr:              cfg.RealtimeAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return apiApp, wsServer, nil
}

// startSystemMetricsUpdater samples runtime metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.HeapAlloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC == 0 {
		return
	}
	// PauseNs is a ring; the latest cycle sits at (NumGC+255)%256.
	last := ms.PauseNs[(ms.NumGC+255)%256]
	metrics.RecordSystemGCPauseTime(float64(last) / nanosecondsPerMillisecond)
}
