package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsImmediately(t *testing.T) {
	res := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(error) bool { return true }, func(attempt int) error {
		return nil
	})
	if res.Attempts != 1 || res.Err != nil {
		t.Fatalf("got %+v", res)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	res := Do(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(error) bool { return false }, func(attempt int) error {
		calls++
		return errors.New("auth failed")
	})
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
	if res.Attempts != 1 {
		t.Fatalf("result attempts = %d, want 1", res.Attempts)
	}
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	res := Do(context.Background(), Config{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Jitter: true}, func(error) bool { return true }, func(attempt int) error {
		calls++
		return errors.New("connection refused")
	})
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	if res.Attempts != 4 || res.Err == nil {
		t.Fatalf("got %+v", res)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoff(cfg, attempt)
		if d > cfg.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, cfg.MaxDelay)
		}
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Do(ctx, Config{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second}, func(error) bool { return true }, func(attempt int) error {
		return errors.New("connection refused")
	})
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
}
