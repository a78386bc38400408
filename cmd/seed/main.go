// seed inserts a handful of test jobs into the local dev database, covering
// the happy path, retry-then-fail, no-retry (AT_MOST_ONCE) and timeout cases.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/infrastructure/postgres"
	"github.com/google/uuid"
)

type jobSpec struct {
	label         string
	schedule      string
	targetURL     string
	executionType domain.ExecutionType
}

var jobs = []jobSpec{
	// Happy path — fires every 10s against httpbin, always 2xx.
	{"seed-ok-fast", "*/10 * * * * *", "https://httpbin.org/post", domain.AtLeastOnce},
	{"seed-ok-minute", "0 * * * * *", "https://httpbin.org/get", domain.AtLeastOnce},

	// Will retry and eventually fail — httpbin always 500s.
	{"seed-fail-500", "*/15 * * * * *", "https://httpbin.org/status/500", domain.AtLeastOnce},
	{"seed-fail-503", "*/20 * * * * *", "https://httpbin.org/status/503", domain.AtLeastOnce},

	// Fails once, never retried.
	{"seed-404-no-retry", "*/30 * * * * *", "https://httpbin.org/status/404", domain.AtMostOnce},

	// Will time out against the configured per-attempt timeout.
	{"seed-timeout", "0 */1 * * * *", "https://httpbin.org/delay/35", domain.AtLeastOnce},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewJobStore(pool)

	var insertedIDs []string
	for _, spec := range jobs {
		job := &domain.Job{
			ID:            uuid.NewString(),
			Schedule:      spec.schedule,
			TargetURL:     spec.targetURL,
			ExecutionType: spec.executionType,
			Active:        true,
		}
		created, err := store.CreateJob(ctx, job)
		if err != nil {
			log.Fatalf("insert job %s: %v", spec.label, err)
		}
		insertedIDs = append(insertedIDs, created.ID)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Jobs created: %d\n", len(insertedIDs))
	fmt.Println()
	fmt.Println("  Job IDs:")
	for i, id := range insertedIDs {
		fmt.Printf("    %-20s %s\n", jobs[i].label, id)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — start the scheduler: go run ./cmd/scheduler")
	fmt.Println("  Step 2 — watch executions for a job:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/jobs/JOB_ID/executions -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    seed-ok-*        -> SUCCESS rows every cycle")
	fmt.Println("    seed-fail-*      -> RETRYING then FAILED after max_retries")
	fmt.Println("    seed-404-no-retry-> single FAILED row, no retry (AT_MOST_ONCE)")
	fmt.Println("    seed-timeout     -> FAILED with error=Timeout")
}
