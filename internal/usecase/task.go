package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/ErlanBelekov/task-scheduler/internal/repository"
)

const (
	DefaultAttemptLimit = 20
	MaxAttemptLimit     = 200
)

type TaskUsecase struct {
	repo        repository.TaskRepository
	attemptRepo repository.AttemptRepository
	now         func() time.Time
}

func NewTaskUsecase(repo repository.TaskRepository, attemptRepo repository.AttemptRepository) *TaskUsecase {
	return &TaskUsecase{repo: repo, attemptRepo: attemptRepo, now: time.Now}
}

type CreateTaskInput struct {
	Name            string
	Operation       string
	Type            string
	IntervalSeconds *int
	CronExpr        *string
	NextExecution   *time.Time // nil means due immediately
	Destination     string
	Payload         *string
}

func (u *TaskUsecase) CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	op, err := domain.ParseOperation(input.Operation)
	if err != nil {
		return nil, err
	}
	typ, err := domain.ParseType(input.Type)
	if err != nil {
		return nil, err
	}

	next := u.now()
	if input.NextExecution != nil {
		next = *input.NextExecution
	}

	task := &domain.Task{
		Name:            input.Name,
		Operation:       op,
		Type:            typ,
		IntervalSeconds: input.IntervalSeconds,
		CronExpr:        input.CronExpr,
		NextExecution:   next,
		Destination:     input.Destination,
		Payload:         input.Payload,
	}
	task.Normalize()
	if err := task.Validate(); err != nil {
		return nil, err
	}

	created, err := u.repo.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

func (u *TaskUsecase) GetTask(ctx context.Context, name string) (*domain.Task, error) {
	task, err := u.repo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (u *TaskUsecase) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	tasks, err := u.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (u *TaskUsecase) UpdateTask(ctx context.Context, name string, patch domain.TaskPatch) (*domain.Task, error) {
	task, err := u.repo.Update(ctx, name, patch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTask) {
			return nil, err
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

func (u *TaskUsecase) DeleteTask(ctx context.Context, name string) error {
	if err := u.repo.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListAttempts returns the newest attempts for a task. A limit outside
// 1..MaxAttemptLimit falls back to the default or the cap.
func (u *TaskUsecase) ListAttempts(ctx context.Context, name string, limit int) ([]*domain.Attempt, error) {
	switch {
	case limit <= 0:
		limit = DefaultAttemptLimit
	case limit > MaxAttemptLimit:
		limit = MaxAttemptLimit
	}

	attempts, err := u.attemptRepo.ListByTaskName(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}
