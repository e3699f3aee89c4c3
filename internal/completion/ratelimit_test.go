package completion

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterConsumesTokens(t *testing.T) {
	rl := NewRateLimiter(60)

	for i := 0; i < 3; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	status := rl.Status()
	if status.TotalConsumed != 3 {
		t.Errorf("TotalConsumed = %d, want 3", status.TotalConsumed)
	}
	if status.TokensLimit != 60 {
		t.Errorf("TokensLimit = %d, want 60", status.TokensLimit)
	}
}

func TestRateLimiterBlocksWhenDrained(t *testing.T) {
	rl := NewRateLimiter(60)
	rl.Record429()

	// Bucket is empty and refills at 1 token/s, so this cannot succeed
	// within the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestRateLimiterDefaultsRPM(t *testing.T) {
	rl := NewRateLimiter(0)
	if got := rl.Status().TokensLimit; got != 60 {
		t.Errorf("TokensLimit = %d, want 60", got)
	}
}

func TestRateLimiterStatusAfter429(t *testing.T) {
	rl := NewRateLimiter(120)
	rl.Record429()

	status := rl.Status()
	if status.Last429Time.IsZero() {
		t.Error("Last429Time should be set after Record429")
	}
	if status.TokensAvailable > 1 {
		t.Errorf("TokensAvailable = %d after drain, want ~0", status.TokensAvailable)
	}
}
