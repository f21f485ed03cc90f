package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, name, operation, type, interval_seconds, cron_expr,
	next_execution, destination, payload, version, created_at, updated_at`

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	query := `
		INSERT INTO tasks (
			name, operation, type, interval_seconds, cron_expr,
			next_execution, destination, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + taskColumns

	row := r.pool.QueryRow(ctx, query,
		task.Name,
		task.Operation,
		task.Type,
		task.IntervalSeconds,
		task.CronExpr,
		task.NextExecution,
		task.Destination,
		task.Payload,
	)

	created, err := scanTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateTask
		}
		return nil, err
	}
	return created, nil
}

func (r *TaskRepository) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name = $1`, name)
	return scanTask(row)
}

func (r *TaskRepository) List(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Update(ctx context.Context, name string, patch domain.TaskPatch) (*domain.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// FOR UPDATE holds the row so a concurrent reschedule can't interleave with the merge.
	current, err := scanTask(tx.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE name = $1 FOR UPDATE`, name))
	if err != nil {
		return nil, err
	}

	if err := patch.Apply(current); err != nil {
		return nil, err
	}
	if err := current.Validate(); err != nil {
		return nil, err
	}

	updated, err := scanTask(tx.QueryRow(ctx, `
		UPDATE tasks
		SET    operation        = $2,
		       type             = $3,
		       interval_seconds = $4,
		       cron_expr        = $5,
		       next_execution   = $6,
		       destination      = $7,
		       payload          = $8,
		       version          = version + 1,
		       updated_at       = NOW()
		WHERE id = $1
		RETURNING `+taskColumns,
		current.ID, current.Operation, current.Type, current.IntervalSeconds, current.CronExpr,
		current.NextExecution, current.Destination, current.Payload,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (r *TaskRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) FetchDue(ctx context.Context, asOf time.Time) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE next_execution <= $1
		ORDER BY next_execution ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Reschedule(ctx context.Context, id int64, next time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET    next_execution = $2,
		       version        = version + 1,
		       updated_at     = NOW()
		WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("reschedule task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) Complete(ctx context.Context, id, version int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish deleted vs modified since fetch
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check task: %w", err)
		}
		if !exists {
			return domain.ErrTaskNotFound
		}
		return domain.ErrStaleTask
	}
	return nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID, &t.Name, &t.Operation, &t.Type, &t.IntervalSeconds, &t.CronExpr,
		&t.NextExecution, &t.Destination, &t.Payload, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.NextExecution = domain.NormalizeTime(t.NextExecution)
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
