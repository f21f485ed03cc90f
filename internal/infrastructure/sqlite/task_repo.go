package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
)

const taskColumns = `id, name, operation, type, interval_seconds, cron_expr,
	next_execution, destination, payload, version, created_at, updated_at`

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	now := time.Now()

	// ON CONFLICT DO NOTHING keeps the existing record byte-for-byte untouched.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			name, operation, type, interval_seconds, cron_expr,
			next_execution, destination, payload, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		task.Name, task.Operation, task.Type, task.IntervalSeconds, task.CronExpr,
		toMillis(task.NextExecution), task.Destination, task.Payload,
		toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrDuplicateTask
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert task id: %w", err)
	}

	return r.getByID(ctx, id)
}

func (r *TaskRepository) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name = ?`, name)
	return scanTask(row)
}

func (r *TaskRepository) getByID(ctx context.Context, id int64) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (r *TaskRepository) List(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Update(ctx context.Context, name string, patch domain.TaskPatch) (*domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name = ?`, name))
	if err != nil {
		return nil, err
	}

	if err := patch.Apply(current); err != nil {
		return nil, err
	}
	if err := current.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET    operation        = ?,
		       type             = ?,
		       interval_seconds = ?,
		       cron_expr        = ?,
		       next_execution   = ?,
		       destination      = ?,
		       payload          = ?,
		       version          = version + 1,
		       updated_at       = ?
		WHERE id = ?`,
		current.Operation, current.Type, current.IntervalSeconds, current.CronExpr,
		toMillis(current.NextExecution), current.Destination, current.Payload,
		toMillis(now), current.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	current.Version++
	current.UpdatedAt = fromMillis(toMillis(now))
	return current, nil
}

func (r *TaskRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res)
}

func (r *TaskRepository) FetchDue(ctx context.Context, asOf time.Time) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE next_execution <= ?
		ORDER BY next_execution ASC`, toMillis(asOf))
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Reschedule(ctx context.Context, id int64, next time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET    next_execution = ?,
		       version        = version + 1,
		       updated_at     = ?
		WHERE id = ?`,
		toMillis(next), toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("reschedule task: %w", err)
	}
	return requireRow(res)
}

func (r *TaskRepository) Complete(ctx context.Context, id, version int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish deleted vs modified since fetch
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("check task: %w", err)
		}
		return domain.ErrStaleTask
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// *sql.Row and *sql.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                              domain.Task
		interval                       sql.NullInt64
		cronExpr, payload              sql.NullString
		nextExec, createdAt, updatedAt int64
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Operation, &t.Type, &interval, &cronExpr,
		&nextExec, &t.Destination, &payload, &t.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if interval.Valid {
		v := int(interval.Int64)
		t.IntervalSeconds = &v
	}
	if cronExpr.Valid {
		t.CronExpr = &cronExpr.String
	}
	if payload.Valid {
		t.Payload = &payload.String
	}
	t.NextExecution = fromMillis(nextExec)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
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
