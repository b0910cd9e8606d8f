package forward

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
	"github.com/sshremote/ssh-mcp-server/internal/sshtest"
)

// startEcho runs a tiny TCP echo server and returns its port.
func startEcho(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	return port
}

func TestForwardRoundTrip(t *testing.T) {
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
	defer res.Handle.Disconnect()

	echoPort := startEcho(t)

	reg := New()
	fwd, err := reg.Start("sess-1", 0, "127.0.0.1", uint16(echoPort), res.Handle)
	if err != nil {
		t.Fatalf("start forward: %v", err)
	}

	conn, err := net.Dial("tcp", fwd.LocalAddress)
	if err != nil {
		t.Fatalf("dial forwarded port: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want %q", buf, "ping")
	}
}

func TestStartBindFailureReturnsOSError(t *testing.T) {
	reg := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	_, err = reg.Start("sess-1", uint16(port), "127.0.0.1", 9, nil)
	if err == nil {
		t.Fatal("expected bind error for already-bound port")
	}
}
