package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	query := `
		INSERT INTO task_attempts (task_name, started_at, duration_ms, ok, status_code, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, task_name, started_at, duration_ms, ok, status_code, error`

	row := r.pool.QueryRow(ctx, query, a.TaskName, a.StartedAt, a.DurationMS, a.OK, a.StatusCode, a.Error)
	return scanAttempt(row)
}

func (r *AttemptRepository) ListByTaskName(ctx context.Context, name string, limit int) ([]*domain.Attempt, error) {
	query := `
		SELECT id, task_name, started_at, duration_ms, ok, status_code, error
		FROM task_attempts
		WHERE task_name = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, name, limit)
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
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM task_attempts
		WHERE id IN (
			SELECT id FROM task_attempts
			WHERE  started_at < $1
			ORDER BY started_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var a domain.Attempt
	err := row.Scan(
		&a.ID, &a.TaskName, &a.StartedAt, &a.DurationMS, &a.OK, &a.StatusCode, &a.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	a.StartedAt = a.StartedAt.UTC()
	return &a, nil
}
