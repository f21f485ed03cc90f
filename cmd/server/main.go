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
	httptransport "github.com/ErlanBelekov/task-scheduler/internal/http"
	"github.com/ErlanBelekov/task-scheduler/internal/http/handler"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/storage"
	ctxlog "github.com/ErlanBelekov/task-scheduler/internal/log"
	"github.com/ErlanBelekov/task-scheduler/internal/metrics"
	"github.com/ErlanBelekov/task-scheduler/internal/scheduler"
	"github.com/ErlanBelekov/task-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	taskUsecase := usecase.NewTaskUsecase(store, store)
	taskHandler := handler.NewTaskHandler(taskUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.Dependency{Name: cfg.StoreDriver, Pinger: store})

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, taskHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	// The loop shares the store with the API; it runs in-process unless disabled
	// in favour of cmd/scheduler.
	var background sync.WaitGroup
	if cfg.SchedulerEnabled {
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

		background.Add(2)
		go func() { defer background.Done(); worker.Start(ctx) }()
		go func() { defer background.Done(); reaper.Start(ctx) }()
	}

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	background.Wait()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
