package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	ctxlog "github.com/ErlanBelekov/task-scheduler/internal/log"
	"github.com/ErlanBelekov/task-scheduler/internal/metrics"
	"github.com/ErlanBelekov/task-scheduler/internal/repository"
	"github.com/ErlanBelekov/task-scheduler/internal/requestid"
	"golang.org/x/sync/errgroup"
)

// executor is satisfied by *Dispatcher.
type executor interface {
	Execute(ctx context.Context, destination string, op domain.Operation, payload *string) Result
}

type Worker struct {
	tasks        repository.TaskRepository
	attempts     repository.AttemptRepository
	dispatcher   executor
	backoff      BackoffPolicy
	logger       *slog.Logger
	pollInterval time.Duration
	concurrency  int
}

func NewWorker(
	tasks repository.TaskRepository,
	attempts repository.AttemptRepository,
	dispatcher executor,
	backoff BackoffPolicy,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency int,
) *Worker {
	if backoff == nil {
		backoff = NoBackoff{}
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		tasks:        tasks,
		attempts:     attempts,
		dispatcher:   dispatcher,
		backoff:      backoff,
		logger:       logger.With("component", "worker"),
		pollInterval: pollInterval,
		concurrency:  concurrency,
	}
}

// Start polls until ctx is cancelled. A cycle in progress finishes its
// dispatches before Start returns.
func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", "poll_interval", w.pollInterval, "concurrency", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			metrics.WorkerShutdownsTotal.Inc()
			w.logger.Info("worker shut down")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("poll cycle", "error", err)
			}
		}
	}
}

// RunOnce runs a single poll cycle: fetch what is due, dispatch it all, apply
// the outcome of each. Only a failed fetch is returned; per-task faults are
// logged and counted.
func (w *Worker) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.PollCycleDuration.Observe(time.Since(start).Seconds()) }()

	due, err := w.tasks.FetchDue(ctx, domain.NormalizeTime(start))
	if err != nil {
		return fmt.Errorf("fetch due: %w", err)
	}
	metrics.DueTasks.Set(float64(len(due)))
	if len(due) == 0 {
		return nil
	}

	w.logger.Debug("due tasks", "count", len(due))

	// The cycle waits for every dispatch, so a task is never in flight twice.
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, task := range due {
		g.Go(func() error {
			w.process(ctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, task *domain.Task) {
	ctx = requestid.WithRequestID(ctx, requestid.New())
	ctx = ctxlog.WithAttrs(ctx, slog.String("task", task.Name))

	defer func() {
		if r := recover(); r != nil {
			metrics.TaskFaultsTotal.WithLabelValues("panic").Inc()
			w.logger.ErrorContext(ctx, "task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := task.Validate(); err != nil {
		metrics.TaskFaultsTotal.WithLabelValues("invalid").Inc()
		w.logger.ErrorContext(ctx, "skipping invalid stored task", "error", err)
		return
	}

	startedAt := time.Now()
	res := w.dispatch(ctx, task)

	outcome := "success"
	if !res.OK {
		outcome = "failure"
	}
	metrics.DispatchDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
	metrics.DispatchesTotal.WithLabelValues(string(task.Type), outcome).Inc()

	w.recordAttempt(ctx, task, startedAt, res)

	if res.OK {
		w.logger.InfoContext(ctx, "task dispatched", "status_code", res.StatusCode, "duration", res.Duration)
	} else {
		w.logger.WarnContext(ctx, "task dispatch failed",
			"status_code", res.StatusCode,
			"detail", res.Detail,
			"duration", res.Duration,
		)
	}

	if task.Type.Recurring() {
		w.reschedule(ctx, task, startedAt)
		return
	}
	if res.OK {
		w.complete(ctx, task)
		return
	}
	if retryAt, ok := w.backoff.RetryAt(task, startedAt); ok {
		w.write(ctx, "reschedule", w.tasks.Reschedule(ctx, task.ID, retryAt))
	}
}

func (w *Worker) dispatch(ctx context.Context, task *domain.Task) Result {
	metrics.DispatchesInFlight.Inc()
	defer metrics.DispatchesInFlight.Dec()
	return w.dispatcher.Execute(ctx, task.Destination, task.Operation, task.Payload)
}

// reschedule moves a recurring task to its next fire time, whatever the
// outcome of the dispatch.
func (w *Worker) reschedule(ctx context.Context, task *domain.Task, dispatchedAt time.Time) {
	next, _, err := task.NextAfter(dispatchedAt)
	if err != nil {
		metrics.TaskFaultsTotal.WithLabelValues("invalid").Inc()
		w.logger.ErrorContext(ctx, "compute next execution", "error", err)
		return
	}
	w.write(ctx, "reschedule", w.tasks.Reschedule(ctx, task.ID, next))
}

func (w *Worker) complete(ctx context.Context, task *domain.Task) {
	w.write(ctx, "complete", w.tasks.Complete(ctx, task.ID, task.Version))
}

// write reports the result of a scheduler write. Losing to a concurrent API
// change is expected and only counted.
func (w *Worker) write(ctx context.Context, op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTaskNotFound):
		metrics.StoreConflictsTotal.WithLabelValues(op + "_deleted").Inc()
		w.logger.InfoContext(ctx, "task removed during dispatch", "op", op)
	case errors.Is(err, domain.ErrStaleTask):
		metrics.StoreConflictsTotal.WithLabelValues(op + "_stale").Inc()
		w.logger.InfoContext(ctx, "task modified during dispatch, keeping it", "op", op)
	default:
		metrics.TaskFaultsTotal.WithLabelValues("store").Inc()
		w.logger.ErrorContext(ctx, "scheduler write", "op", op, "error", err)
	}
}

// recordAttempt appends to the attempt log. A failure here never affects
// rescheduling.
func (w *Worker) recordAttempt(ctx context.Context, task *domain.Task, startedAt time.Time, res Result) {
	attempt := &domain.Attempt{
		TaskName:   task.Name,
		StartedAt:  domain.NormalizeTime(startedAt),
		DurationMS: res.Duration.Milliseconds(),
		OK:         res.OK,
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		attempt.StatusCode = &code
	}
	if !res.OK {
		detail := res.Detail
		attempt.Error = &detail
	}

	if _, err := w.attempts.CreateAttempt(ctx, attempt); err != nil {
		w.logger.ErrorContext(ctx, "record attempt", "error", err)
	}
}
