package domain

import "time"

// Attempt is one dispatch made on behalf of a task. Attempts outlive their
// task, so a completed single task still has its history.
type Attempt struct {
	ID         int64
	TaskName   string
	StartedAt  time.Time
	DurationMS int64
	OK         bool
	StatusCode *int    // nil when no response was received
	Error      *string // nil on success
}
