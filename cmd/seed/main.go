// seed inserts a handful of demo tasks into the configured store.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ErlanBelekov/task-scheduler/config"
	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/storage"
	ctxlog "github.com/ErlanBelekov/task-scheduler/internal/log"
	"github.com/ErlanBelekov/task-scheduler/internal/usecase"
)

func ptr[T any](v T) *T { return &v }

var tasks = []usecase.CreateTaskInput{
	// Recurring, succeeds
	{Name: "seed-ping", Operation: "GET", Type: "interval", IntervalSeconds: ptr(10), Destination: "https://httpbin.org/get"},
	{Name: "seed-heartbeat", Operation: "POST", Type: "interval", IntervalSeconds: ptr(30), Destination: "https://httpbin.org/post", Payload: ptr(`{"source":"seed"}`)},

	// Recurring, always fails; stays scheduled
	{Name: "seed-flaky", Operation: "GET", Type: "interval", IntervalSeconds: ptr(15), Destination: "https://httpbin.org/status/503"},

	// Cron, top of every minute
	{Name: "seed-cron", Operation: "PUT", Type: "cron", CronExpr: ptr("* * * * *"), Destination: "https://httpbin.org/put", Payload: ptr("tick")},

	// Single, succeeds and is deleted after its first dispatch
	{Name: "seed-once", Operation: "POST", Type: "single", Destination: "https://httpbin.org/post", Payload: ptr("hi")},

	// Single, fails; retried every poll until removed
	{Name: "seed-once-failing", Operation: "DELETE", Type: "single", Destination: "https://httpbin.org/status/500"},
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := ctxlog.New(os.Stderr, cfg.Env, cfg.SlogLevel())

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	uc := usecase.NewTaskUsecase(store, store)

	// Skip any that already exist (idempotent re-runs)
	var inserted, skipped int
	for _, in := range tasks {
		if _, err := uc.CreateTask(ctx, in); err != nil {
			if errors.Is(err, domain.ErrDuplicateTask) {
				skipped++
				continue
			}
			store.Close()
			log.Fatalf("create task %s: %v", in.Name, err)
		}
		inserted++
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Store:         %s\n", cfg.StoreDriver)
	fmt.Printf("  Tasks created: %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Printf("  curl -s http://localhost:%s/tasks\n", cfg.Port)
	fmt.Printf("  curl -s 'http://localhost:%s/tasks/attempts?name=seed-flaky'\n", cfg.Port)
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    seed-ping, seed-heartbeat, seed-cron  →  stay, next_execution keeps moving")
	fmt.Println("    seed-flaky                            →  stays, every attempt fails (503)")
	fmt.Println("    seed-once                             →  gone after the first poll")
	fmt.Println("    seed-once-failing                     →  stays due, retried every poll")
}
