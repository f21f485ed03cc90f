package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
)

// TaskRepository is the task store shared by the CRUD API and the scheduler.
// Every method is atomic with respect to the others.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	GetByName(ctx context.Context, name string) (*domain.Task, error)
	List(ctx context.Context) ([]*domain.Task, error)
	// Update applies patch and validates the merged record in one transaction.
	Update(ctx context.Context, name string, patch domain.TaskPatch) (*domain.Task, error)
	Delete(ctx context.Context, name string) error

	// Scheduler side. Writes address records by id, not name: a task deleted
	// and recreated under the same name is a different record.
	FetchDue(ctx context.Context, asOf time.Time) ([]*domain.Task, error)
	// Reschedule writes only next_execution. Returns ErrTaskNotFound if the task
	// was deleted in the meantime; it never recreates a record.
	Reschedule(ctx context.Context, id int64, next time.Time) error
	// Complete deletes a single task after a successful dispatch, but only if
	// it still has the version the scheduler fetched (ErrStaleTask otherwise).
	Complete(ctx context.Context, id, version int64) error
}
