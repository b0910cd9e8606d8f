package commands

import (
	"context"
	"testing"
	"time"

	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
	"github.com/sshremote/ssh-mcp-server/internal/sshtest"
)

func dial(t *testing.T) *sshclient.Handle {
	t.Helper()
	srv := sshtest.Start(t)
	host, port, err := sshclient.ParseAddress(srv.Addr)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.ResolveConnect(2, 1, 10, nil)
	res, err := sshclient.ConnectWithRetry(context.Background(), host, port, sshtest.Username, sshclient.PasswordStrategy{Password: sshtest.Password}, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { res.Handle.Disconnect() })
	return res.Handle
}

func TestStartAndWaitCompletes(t *testing.T) {
	reg := New(0)
	handle := dial(t)

	rec, err := reg.Start("sess-1", "echo hi", handle, 5*time.Second)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := reg.WaitFor(rec.ID, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != Completed {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if string(snap.Stdout) != "hi\n" {
		t.Fatalf("stdout = %q", snap.Stdout)
	}
	if snap.ExitCode == nil || *snap.ExitCode != 0 {
		t.Fatalf("exit code = %v, want 0", snap.ExitCode)
	}
	if snap.TimedOut {
		t.Fatal("timed_out should be false")
	}
}

func TestTimeoutPreservesPartialOutput(t *testing.T) {
	reg := New(0)
	handle := dial(t)

	rec, err := reg.Start("sess-1", "printf a; sleep 10", handle, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := reg.WaitFor(rec.ID, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != Completed {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if !snap.TimedOut {
		t.Fatal("expected timed_out=true")
	}
	if snap.ExitCode == nil || *snap.ExitCode != -1 {
		t.Fatalf("exit code = %v, want -1", snap.ExitCode)
	}
	if string(snap.Stdout) != "a" {
		t.Fatalf("stdout = %q, want %q", snap.Stdout, "a")
	}

	// Session must remain usable after a timed-out command.
	rec2, err := reg.Start("sess-1", "echo ok", handle, 5*time.Second)
	if err != nil {
		t.Fatalf("start after timeout: %v", err)
	}
	snap2, err := reg.WaitFor(rec2.ID, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if snap2.Status != Completed || snap2.ExitCode == nil || *snap2.ExitCode != 0 {
		t.Fatalf("second command did not complete cleanly: %+v", snap2)
	}
}

func TestCancelPreservesPartialOutput(t *testing.T) {
	reg := New(0)
	handle := dial(t)

	rec, err := reg.Start("sess-1", "for i in 1 2 3 4 5; do echo $i; sleep 1; done", handle, 60*time.Second)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(2500 * time.Millisecond)
	cancelled, snap, err := reg.Cancel(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cancelled {
		t.Fatal("expected cancelled=true")
	}
	if snap.Status != Cancelled {
		t.Fatalf("status = %s, want cancelled", snap.Status)
	}
	if len(snap.Stdout) == 0 {
		t.Fatal("expected some partial output")
	}
}

func TestCancelOnTerminalCommandReportsFalse(t *testing.T) {
	reg := New(0)
	handle := dial(t)

	rec, err := reg.Start("sess-1", "echo hi", handle, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.WaitFor(rec.ID, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	cancelled, _, err := reg.Cancel(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled {
		t.Fatal("expected cancelled=false for a completed command")
	}
}

func TestCapacityExceeded(t *testing.T) {
	reg := New(1)
	handle := dial(t)

	if _, err := reg.Start("sess-1", "sleep 5", handle, 5*time.Second); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := reg.Start("sess-1", "echo hi", handle, 5*time.Second)
	if err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestTeardownSessionCancelsRunning(t *testing.T) {
	reg := New(0)
	handle := dial(t)

	rec, err := reg.Start("sess-1", "sleep 30", handle, 60*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	n := reg.TeardownSession("sess-1")
	if n != 1 {
		t.Fatalf("cancelled count = %d, want 1", n)
	}
	if _, err := reg.Get(rec.ID); err != ErrNotFound {
		t.Fatal("expected command removed from registry after teardown")
	}
}
