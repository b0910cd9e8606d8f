package sshclient

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/sshtest"
)

func TestConnectWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	srv := sshtest.Start(t)
	host, port, err := ParseAddress(srv.Addr)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.ResolveConnect(2, 1, 10, nil)
	res, err := ConnectWithRetry(context.Background(), host, port, sshtest.Username, PasswordStrategy{Password: sshtest.Password}, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if res.RetryAttempts != 0 {
		t.Fatalf("retry attempts = %d, want 0", res.RetryAttempts)
	}
	if res.Handle == nil {
		t.Fatal("expected non-nil handle")
	}
	defer res.Handle.Disconnect()
}

func TestConnectWithRetryAuthFailureNeverRetries(t *testing.T) {
	srv := sshtest.Start(t)
	host, port, err := ParseAddress(srv.Addr)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.ResolveConnect(2, 5, 1, nil)
	_, err = ConnectWithRetry(context.Background(), host, port, sshtest.Username, PasswordStrategy{Password: "wrong"}, cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("1 attempt")) {
		t.Fatalf("expected exactly 1 attempt in error, got: %v", err)
	}
}

func TestConnectWithRetryExhaustsOnUnreachable(t *testing.T) {
	cfg := config.ResolveConnect(1, 2, 1, nil)
	start := time.Now()
	_, err := ConnectWithRetry(context.Background(), "127.0.0.1", 1, "nobody", PasswordStrategy{Password: "x"}, cfg)
	if err == nil {
		t.Fatal("expected error dialing a closed port")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("retry loop took unexpectedly long")
	}
}

func TestExecRunsCommand(t *testing.T) {
	srv := sshtest.Start(t)
	host, port, _ := ParseAddress(srv.Addr)
	cfg := config.ResolveConnect(2, 1, 10, nil)
	res, err := ConnectWithRetry(context.Background(), host, port, sshtest.Username, PasswordStrategy{Password: sshtest.Password}, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer res.Handle.Disconnect()

	ch, reqs, err := res.Handle.Exec("echo hi")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	defer ch.Close()

	var stdout bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for req := range reqs {
			if req.WantReply {
				req.Reply(true, nil)
			}
		}
	}()
	io.Copy(&stdout, ch)
	<-done

	if got := stdout.String(); got != "hi\n" {
		t.Fatalf("stdout = %q, want %q", got, "hi\n")
	}
}
