// Package classify decides whether an error surfaced by the SSH layer is
// worth retrying. It is a pure function of the error text, consulted by the
// retry wrapper and, per spec §4.2, exposed as its own contract so other
// packages (and tests) can reason about retry behavior without a live dial.
package classify

import "strings"

var nonRetryablePhrases = []string{
	"authentication failed",
	"password authentication failed",
	"key authentication failed",
	"agent authentication failed",
	"permission denied",
	"publickey",
	"auth fail",
	"no authentication",
	"all authentication methods failed",
	"unable to authenticate",
	"no supported methods remain",
}

var retryablePhrases = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"timeout",
	"network is unreachable",
	"no route to host",
	"host is down",
	"temporary failure",
	"resource temporarily unavailable",
	"handshake failed",
	"failed to connect",
	"broken pipe",
	"would block",
}

// Retryable reports whether err is worth retrying under the rules of spec
// §4.2. A nil error is not retryable — there is nothing to retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return RetryableText(err.Error())
}

// RetryableText applies the classification rules directly to an error
// surface string, case-insensitively.
func RetryableText(text string) bool {
	lower := strings.ToLower(text)

	for _, p := range nonRetryablePhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	for _, p := range retryablePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}

	// Conservative heuristic for other SSH-level errors: if the text
	// mentions "ssh" but neither "timeout" nor "connect", treat it as
	// non-retryable rather than hammering a server that is actively
	// rejecting us for a reason we don't recognize.
	if strings.Contains(lower, "ssh") && !strings.Contains(lower, "timeout") && !strings.Contains(lower, "connect") {
		return false
	}

	return true
}
