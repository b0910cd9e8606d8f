package sshclient

import (
	"context"
	"fmt"

	"github.com/sshremote/ssh-mcp-server/internal/classify"
	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/retry"
)

// ConnectResult carries the outcome of a retrying connect attempt.
type ConnectResult struct {
	Handle        *Handle
	RetryAttempts int // retries performed: attempts used minus one
}

// ConnectWithRetry wraps singleAttemptConnect in the exponential backoff
// loop described in spec §4.4: initial delay and attempt cap come from cfg,
// the cap on delay is the package-wide config.MaxRetryDelay, and the
// retry predicate is the error classifier.
func ConnectWithRetry(ctx context.Context, host string, port int, username string, strategy Strategy, cfg config.Connect) (ConnectResult, error) {
	rcfg := retry.Config{
		MaxAttempts:  cfg.MaxRetries + 1,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     config.MaxRetryDelay,
		Jitter:       true,
	}

	var handle *Handle
	res := retry.Do(ctx, rcfg, classify.Retryable, func(attempt int) error {
		h, err := singleAttemptConnect(ctx, host, port, username, strategy, cfg.Timeout, cfg.Compress)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})

	if res.Err != nil {
		return ConnectResult{}, fmt.Errorf("SSH connection failed after %d attempt(s). Last error: %s", res.Attempts, res.Err.Error())
	}
	// retry_attempts reports retries performed, not the total attempt count
	// (spec §8 scenario 2: two failures then a success reports 2, not 3).
	return ConnectResult{Handle: handle, RetryAttempts: res.Attempts - 1}, nil
}
