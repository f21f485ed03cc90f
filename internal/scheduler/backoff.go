package scheduler

import (
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
)

// BackoffPolicy decides what happens to a single task whose dispatch failed.
// ok=false leaves the record untouched, so the task stays due.
type BackoffPolicy interface {
	RetryAt(task *domain.Task, failedAt time.Time) (next time.Time, ok bool)
}

// NoBackoff retries on the very next poll.
type NoBackoff struct{}

func (NoBackoff) RetryAt(*domain.Task, time.Time) (time.Time, bool) {
	return time.Time{}, false
}

// FixedBackoff pushes next_execution a constant delay past the failed attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) RetryAt(_ *domain.Task, failedAt time.Time) (time.Time, bool) {
	return domain.NormalizeTime(failedAt.Add(b.Delay)), true
}

// NewBackoffPolicy maps RETRY_BACKOFF_SEC to a policy; zero disables backoff.
func NewBackoffPolicy(delay time.Duration) BackoffPolicy {
	if delay <= 0 {
		return NoBackoff{}
	}
	return FixedBackoff{Delay: delay}
}
