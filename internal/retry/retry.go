// Package retry implements the capped exponential backoff with jitter used
// by the SSH connect path (spec §4.4). The "should retry" decision is
// injected as a predicate so the wrapper stays independent of the error
// classifier package.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
)

// Config parameterizes a retry sequence.
type Config struct {
	MaxAttempts int // total attempts, i.e. max_retries + 1
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// When is the retry predicate: given the error from the most recent attempt,
// report whether another attempt should be made.
type When func(err error) bool

// Result reports how many attempts an operation actually took.
type Result struct {
	Attempts int
	Err      error
}

// Do runs op until it succeeds, the predicate rejects the error as
// non-retryable, or attempts are exhausted. It never sleeps after the final
// attempt. Delay at attempt k (1-indexed) is min(InitialDelay*2^(k-1),
// MaxDelay), optionally jittered by up to +/-25% of that value.
func Do(ctx context.Context, cfg Config, when When, op func(attempt int) error) Result {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return Result{Attempts: attempt, Err: nil}
		}
		if attempt == maxAttempts || !when(lastErr) {
			return Result{Attempts: attempt, Err: lastErr}
		}

		delay := backoff(cfg, attempt)
		log.Debug().Int("attempt", attempt).Dur("delay", delay).Err(lastErr).Msg("retry backoff")
		select {
		case <-ctx.Done():
			return Result{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return Result{Attempts: maxAttempts, Err: lastErr}
}

func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.MaxDelay {
			d = cfg.MaxDelay
			break
		}
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if !cfg.Jitter || d <= 0 {
		return d
	}
	// +/- 25% jitter window, floor at zero.
	window := int64(d) / 4
	if window <= 0 {
		return d
	}
	offset := rand.Int64N(2*window+1) - window
	jittered := int64(d) + offset
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
