package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgTestStore connects to the database named by DUEWORK_TEST_DSN, applies
// migrations, and returns a PG store. Tests are skipped when the variable
// is unset so the suite stays runnable without Postgres.
func pgTestStore(t *testing.T) (*PG, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("DUEWORK_TEST_DSN")
	if dsn == "" {
		t.Skip("DUEWORK_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := Open(ctx, Config{DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewPG(pool), pool
}

func TestPGClaimConcurrentSingleWinner(t *testing.T) {
	s, _ := pgTestStore(t)
	ctx := context.Background()

	// Unique queue name isolates this run from leftover rows.
	queue := "claim-test-" + uuid.New().String()
	if err := s.CreateJob(ctx, &Job{Queue: queue}); err != nil {
		t.Fatal(err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var won []*Job
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.Claim(ctx, queue)
			if err != nil {
				t.Errorf("Claim() error = %v", err)
				return
			}
			if claimed != nil {
				mu.Lock()
				won = append(won, claimed)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(won) != 1 {
		t.Fatalf("%d claimers won, want exactly 1", len(won))
	}
	if won[0].Status != StatusRunning {
		t.Errorf("Status = %s, want %s", won[0].Status, StatusRunning)
	}
	if won[0].StartedAt == nil {
		t.Error("StartedAt should be set on claim")
	}
}

func TestPGClaimConcurrentDistinctJobs(t *testing.T) {
	s, _ := pgTestStore(t)
	ctx := context.Background()

	queue := "claim-test-" + uuid.New().String()
	const jobs = 4
	for i := 0; i < jobs; i++ {
		if err := s.CreateJob(ctx, &Job{Queue: queue}); err != nil {
			t.Fatal(err)
		}
	}

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.Claim(ctx, queue)
			if err != nil {
				t.Errorf("Claim() error = %v", err)
				return
			}
			if claimed != nil {
				mu.Lock()
				seen[claimed.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), jobs)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}
