package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
)

type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO task_attempts (task_name, started_at, duration_ms, ok, status_code, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.TaskName, toMillis(a.StartedAt), a.DurationMS, a.OK, a.StatusCode, a.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert attempt id: %w", err)
	}

	created := *a
	created.ID = id
	created.StartedAt = fromMillis(toMillis(a.StartedAt))
	return &created, nil
}

func (r *AttemptRepository) ListByTaskName(ctx context.Context, name string, limit int) ([]*domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_name, started_at, duration_ms, ok, status_code, error
		FROM task_attempts
		WHERE task_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func (r *AttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM task_attempts
		WHERE id IN (
			SELECT id FROM task_attempts
			WHERE  started_at < ?
			ORDER BY started_at ASC
			LIMIT ?
		)`, toMillis(cutoff), limit)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var (
		a          domain.Attempt
		startedAt  int64
		statusCode sql.NullInt64
		errMsg     sql.NullString
	)
	err := row.Scan(&a.ID, &a.TaskName, &startedAt, &a.DurationMS, &a.OK, &statusCode, &errMsg)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	a.StartedAt = fromMillis(startedAt)
	if statusCode.Valid {
		v := int(statusCode.Int64)
		a.StatusCode = &v
	}
	if errMsg.Valid {
		a.Error = &errMsg.String
	}
	return &a, nil
}
