package classify

import "errors"

import "testing"

func TestNonRetryable(t *testing.T) {
	cases := []string{
		"ssh: handshake failed: ssh: authentication failed, no supported methods",
		"ssh: Permission denied (publickey,password)",
		"all authentication methods failed",
	}
	for _, c := range cases {
		if Retryable(errors.New(c)) {
			t.Errorf("expected %q to be non-retryable", c)
		}
	}
}

func TestRetryable(t *testing.T) {
	cases := []string{
		"dial tcp 10.0.0.1:22: connect: connection refused",
		"dial tcp: i/o timeout",
		"dial tcp: network is unreachable",
		"read: connection reset by peer",
	}
	for _, c := range cases {
		if !Retryable(errors.New(c)) {
			t.Errorf("expected %q to be retryable", c)
		}
	}
}

func TestDefaultHeuristic(t *testing.T) {
	if Retryable(errors.New("ssh: unexpected packet type")) {
		t.Error("unrecognized ssh-prefixed error without timeout/connect should be non-retryable")
	}
	if !Retryable(errors.New("some transient blip")) {
		t.Error("unrecognized non-ssh error should default to retryable")
	}
}

func TestNilError(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil error should not be retryable")
	}
}
