package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/metrics"
	"github.com/ErlanBelekov/task-scheduler/internal/repository"
)

const reapBatchSize = 500

// Reaper prunes attempt-log rows older than the retention window.
type Reaper struct {
	attempts  repository.AttemptRepository
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
}

func NewReaper(attempts repository.AttemptRepository, logger *slog.Logger, interval, retention time.Duration) *Reaper {
	return &Reaper{
		attempts:  attempts,
		logger:    logger.With("component", "reaper"),
		interval:  interval,
		retention: retention,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "retention", r.retention)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("prune attempts", "error", err)
			}
		}
	}
}

// ReapOnce deletes expired attempts in batches and returns how many went.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds()) }()

	cutoff := start.Add(-r.retention)

	var total int
	for {
		n, err := r.attempts.DeleteBefore(ctx, cutoff, reapBatchSize)
		total += n
		metrics.ReaperPrunedTotal.Add(float64(n))
		if err != nil {
			return total, err
		}
		if n < reapBatchSize {
			break
		}
	}

	if total > 0 {
		r.logger.Info("pruned attempts", "count", total, "cutoff", cutoff)
	}
	return total, nil
}
