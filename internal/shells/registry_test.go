package shells

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

func TestOpenWriteReadEcho(t *testing.T) {
	reg := New()
	handle := dial(t)

	sh, err := reg.Open("sess-1", "xterm", 80, 24, handle)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := reg.Write(sh.ID, []byte("xy\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var got []byte
	for time.Now().Before(deadline) {
		res, err := reg.Read(sh.ID)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, res.Data...)
		if bytesContain(got, "xy\n") {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !bytesContain(got, "xy\n") {
		t.Fatalf("never observed echoed bytes, got %q", got)
	}
}

func TestReadDrainIsIdempotent(t *testing.T) {
	reg := New()
	handle := dial(t)
	sh, err := reg.Open("sess-1", "xterm", 80, 24, handle)
	if err != nil {
		t.Fatal(err)
	}
	reg.Write(sh.ID, []byte("a\n"))
	time.Sleep(100 * time.Millisecond)

	first, err := reg.Read(sh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Data) == 0 {
		t.Fatal("expected some data on first read")
	}
	second, err := reg.Read(sh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Data) != 0 {
		t.Fatalf("second read should be empty, got %q", second.Data)
	}
}

func TestCloseIsIdempotentAndWriteFailsAfter(t *testing.T) {
	reg := New()
	handle := dial(t)
	sh, err := reg.Open("sess-1", "xterm", 80, 24, handle)
	if err != nil {
		t.Fatal(err)
	}

	ok1, err := reg.Close(sh.ID)
	if err != nil || !ok1 {
		t.Fatalf("first close: ok=%v err=%v", ok1, err)
	}
	ok2, err := reg.Close(sh.ID)
	if err != nil || !ok2 {
		t.Fatalf("second close: want closed=true, ok=%v err=%v", ok2, err)
	}
	if err := reg.Write(sh.ID, []byte("x")); err != ErrNotFound {
		t.Fatalf("write after close: want ErrNotFound, got %v", err)
	}
}

func TestCapacityExceeded(t *testing.T) {
	reg := New()
	handle := dial(t)
	for i := 0; i < MaxPerSession; i++ {
		if _, err := reg.Open("sess-1", "xterm", 80, 24, handle); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
	}
	if _, err := reg.Open("sess-1", "xterm", 80, 24, handle); err == nil {
		t.Fatal("expected capacity error on the 11th shell")
	}
}

func bytesContain(haystack []byte, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack []byte, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}
