package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ErlanBelekov/task-scheduler/config"
	"github.com/ErlanBelekov/task-scheduler/internal/health"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/storage"
	ctxlog "github.com/ErlanBelekov/task-scheduler/internal/log"
	"github.com/ErlanBelekov/task-scheduler/internal/metrics"
	"github.com/ErlanBelekov/task-scheduler/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

// scheduler runs the poll loop and the attempt reaper without the API. Run the
// server with SCHEDULER_ENABLED=false next to it, or it will double-dispatch.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.Dependency{Name: cfg.StoreDriver, Pinger: store})

	worker := scheduler.NewWorker(
		store,
		store,
		scheduler.NewDispatcher(cfg.DispatchTimeout()),
		scheduler.NewBackoffPolicy(cfg.RetryBackoff()),
		logger,
		cfg.PollInterval(),
		cfg.DispatchConcurrency,
	)
	reaper := scheduler.NewReaper(store, logger, cfg.ReaperInterval(), cfg.AttemptRetention())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); worker.Start(ctx) }()
	go func() { defer wg.Done(); reaper.Start(ctx) }()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}
