package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/postgres"
)

func ptr[T any](v T) *T { return &v }

// newTestStore connects to TEST_DATABASE_URL and empties the tables. Tests
// are skipped when it is unset.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("schema: %v", err)
	}
	// Identities keep counting across TRUNCATE, like in production.
	if _, err := pool.Exec(ctx, `TRUNCATE tasks, task_attempts`); err != nil {
		pool.Close()
		t.Fatalf("truncate: %v", err)
	}

	store := postgres.NewStore(pool)
	t.Cleanup(store.Close)
	return store
}

func newTask(name string) *domain.Task {
	return &domain.Task{
		Name:            name,
		Operation:       domain.OperationGet,
		Type:            domain.TypeInterval,
		IntervalSeconds: ptr(5),
		NextExecution:   domain.NormalizeTime(time.Now()),
		Destination:     "http://x/health",
	}
}

func TestCreate_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newTask("ping")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := newTask("ping")
	dup.Destination = "http://x/other"
	if _, err := store.Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}

	got, err := store.GetByName(ctx, "ping")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.Destination != "http://x/health" {
		t.Errorf("original was modified: %+v", got)
	}
}

func TestUpdate_InvalidLeavesStoreUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, newTask("ping"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Update(ctx, "ping", domain.TaskPatch{IntervalSeconds: ptr(0)}); !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if _, err := store.Update(ctx, "ghost", domain.TaskPatch{}); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	got, _ := store.GetByName(ctx, "ping")
	if got.Version != created.Version || *got.IntervalSeconds != 5 {
		t.Errorf("record changed: %+v", got)
	}
}

func TestFetchDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := domain.NormalizeTime(time.Now())

	past := newTask("past")
	past.NextExecution = now.Add(-time.Minute)
	future := newTask("future")
	future.NextExecution = now.Add(time.Minute)
	for _, task := range []*domain.Task{past, future} {
		if _, err := store.Create(ctx, task); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	due, err := store.FetchDue(ctx, now)
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 1 || due[0].Name != "past" {
		t.Fatalf("due = %+v, want just past", due)
	}
}

func TestReschedule_RecreatedTaskIsNotTouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old, err := store.Create(ctx, newTask("ping"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, "ping"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	fresh := newTask("ping")
	fresh.NextExecution = domain.NormalizeTime(time.Now().Add(24 * time.Hour))
	if _, err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("Create again: %v", err)
	}

	if err := store.Reschedule(ctx, old.ID, time.Now().Add(5*time.Second)); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for the old id, got %v", err)
	}
	got, _ := store.GetByName(ctx, "ping")
	if !got.NextExecution.Equal(fresh.NextExecution) || got.Version != 1 {
		t.Errorf("recreated task was modified: %+v", got)
	}
}

func TestComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done, err := store.Create(ctx, newTask("done"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Complete(ctx, done.ID, done.Version); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := store.GetByName(ctx, "done"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}

	edited, err := store.Create(ctx, newTask("edited"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Update(ctx, "edited", domain.TaskPatch{Destination: ptr("http://x/new")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Complete(ctx, edited.ID, edited.Version); !errors.Is(err, domain.ErrStaleTask) {
		t.Fatalf("expected ErrStaleTask, got %v", err)
	}

	old, err := store.Create(ctx, newTask("once"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, "once"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Create(ctx, newTask("once")); err != nil {
		t.Fatalf("Create again: %v", err)
	}
	if err := store.Complete(ctx, old.ID, old.Version); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for the old id, got %v", err)
	}
	if _, err := store.GetByName(ctx, "once"); err != nil {
		t.Fatalf("recreated task was deleted: %v", err)
	}
}

func TestAttempts_DeleteBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := domain.NormalizeTime(time.Now())

	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Minute} {
		if _, err := store.CreateAttempt(ctx, &domain.Attempt{TaskName: "ping", StartedAt: now.Add(-age), OK: true}); err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
	}

	n, err := store.DeleteBefore(ctx, now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	left, _ := store.ListByTaskName(ctx, "ping", 10)
	if len(left) != 1 {
		t.Fatalf("expected one attempt left, got %+v", left)
	}
}
