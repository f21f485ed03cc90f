package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/sqlite"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := sqlite.NewStore(db)
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

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := newTask("ping")
	in.Payload = ptr(`{"a":1}`)

	created, err := store.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected system-assigned id")
	}
	if created.Version != 1 {
		t.Errorf("Version = %d, want 1", created.Version)
	}

	got, err := store.GetByName(ctx, "ping")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.ID != created.ID ||
		got.Operation != in.Operation ||
		got.Type != in.Type ||
		*got.IntervalSeconds != 5 ||
		got.CronExpr != nil ||
		!got.NextExecution.Equal(in.NextExecution) ||
		got.Destination != in.Destination ||
		*got.Payload != `{"a":1}` {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, in)
	}
	if got.NextExecution.Location() != time.UTC {
		t.Errorf("NextExecution location = %v, want UTC", got.NextExecution.Location())
	}
}

func TestCreate_DuplicateLeavesOriginal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newTask("ping")); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	dup := newTask("ping")
	dup.Destination = "http://other/health"
	if _, err := store.Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}

	got, err := store.GetByName(ctx, "ping")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.Destination != "http://x/health" || got.Version != 1 {
		t.Fatalf("original record modified: %+v", got)
	}
}

func TestCreate_ConcurrentSameName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(ctx, newTask("race")); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrDuplicateTask) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful create, got %d", successes)
	}
}

func TestGetByName_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetByName(context.Background(), "missing"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestList_OrderedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		if _, err := store.Create(ctx, newTask(fmt.Sprintf("t%d", i))); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tasks, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		if want := fmt.Sprintf("t%d", i); task.Name != want {
			t.Errorf("tasks[%d] = %q, want %q", i, task.Name, want)
		}
	}
}

func TestUpdate_MergesAndBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newTask("ping")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.Update(ctx, "ping", domain.TaskPatch{
		IntervalSeconds: ptr(60),
		Destination:     ptr("https://y/status"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if *updated.IntervalSeconds != 60 || updated.Destination != "https://y/status" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	got, _ := store.GetByName(ctx, "ping")
	if *got.IntervalSeconds != 60 || got.Version != 2 || got.Operation != domain.OperationGet {
		t.Fatalf("stored record = %+v", got)
	}
}

func TestUpdate_InvalidLeavesStoreUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newTask("ping")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := store.Update(ctx, "ping", domain.TaskPatch{Type: ptr("cron")}) // cron without cron_expr
	if !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	_, err = store.Update(ctx, "ping", domain.TaskPatch{Name: ptr("pong")})
	if !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for rename, got %v", err)
	}

	got, _ := store.GetByName(ctx, "ping")
	if got.Type != domain.TypeInterval || got.Version != 1 {
		t.Fatalf("store modified by failed update: %+v", got)
	}
}

func TestUpdateDelete_NotFoundNeverCreates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Update(ctx, "ghost", domain.TaskPatch{IntervalSeconds: ptr(1)}); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("Update: expected ErrTaskNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "ghost"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("Delete: expected ErrTaskNotFound, got %v", err)
	}

	tasks, _ := store.List(ctx)
	if len(tasks) != 0 {
		t.Fatalf("expected empty store, got %d tasks", len(tasks))
	}
}

func TestFetchDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := domain.NormalizeTime(time.Now())

	past := newTask("past")
	past.NextExecution = now.Add(-time.Minute)
	exact := newTask("exact")
	exact.NextExecution = now
	future := newTask("future")
	future.NextExecution = now.Add(time.Minute)

	for _, task := range []*domain.Task{future, exact, past} {
		if _, err := store.Create(ctx, task); err != nil {
			t.Fatalf("Create %s: %v", task.Name, err)
		}
	}

	due, err := store.FetchDue(ctx, now)
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 2 || due[0].Name != "past" || due[1].Name != "exact" {
		names := make([]string, len(due))
		for i, d := range due {
			names[i] = d.Name
		}
		t.Fatalf("due = %v, want [past exact]", names)
	}
}

func TestReschedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, newTask("ping"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := domain.NormalizeTime(time.Now().Add(time.Hour))
	if err := store.Reschedule(ctx, created.ID, next); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	got, _ := store.GetByName(ctx, "ping")
	if !got.NextExecution.Equal(next) {
		t.Errorf("NextExecution = %v, want %v", got.NextExecution, next)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func TestReschedule_AfterDeleteDoesNotRecreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, newTask("ping"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, "ping"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	err = store.Reschedule(ctx, created.ID, time.Now().Add(time.Minute))
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := store.GetByName(ctx, "ping"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("record came back: %v", err)
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
	recreated, err := store.Create(ctx, fresh)
	if err != nil {
		t.Fatalf("Create again: %v", err)
	}
	if recreated.ID == old.ID {
		t.Fatalf("id %d was reused", old.ID)
	}

	if err := store.Reschedule(ctx, old.ID, time.Now().Add(5*time.Second)); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for the old id, got %v", err)
	}
	got, _ := store.GetByName(ctx, "ping")
	if !got.NextExecution.Equal(fresh.NextExecution) || got.Version != 1 {
		t.Errorf("recreated task was modified: %+v", got)
	}
}

func TestComplete_RecreatedTaskIsKept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old, err := store.Create(ctx, newTask("once"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, "once"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Same name, same starting version as the old record.
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

func TestComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, newTask("once"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Complete(ctx, created.ID, created.Version); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := store.GetByName(ctx, "once"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}
	if err := store.Complete(ctx, created.ID, created.Version); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("second Complete: expected ErrTaskNotFound, got %v", err)
	}
}

func TestComplete_StaleAfterUpdateKeepsTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, newTask("once"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Update(ctx, "once", domain.TaskPatch{Destination: ptr("http://x/new")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := store.Complete(ctx, created.ID, created.Version); !errors.Is(err, domain.ErrStaleTask) {
		t.Fatalf("expected ErrStaleTask, got %v", err)
	}
	got, err := store.GetByName(ctx, "once")
	if err != nil {
		t.Fatalf("task should survive: %v", err)
	}
	if got.Destination != "http://x/new" {
		t.Errorf("Destination = %q, want the API's edit", got.Destination)
	}
}
