package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
)

type AttemptRepository interface {
	// CreateAttempt appends one dispatch outcome to the attempt log.
	CreateAttempt(ctx context.Context, attempt *domain.Attempt) (*domain.Attempt, error)

	// ListByTaskName returns the newest attempts first.
	ListByTaskName(ctx context.Context, name string, limit int) ([]*domain.Attempt, error)

	// DeleteBefore prunes at most limit attempts that started before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
