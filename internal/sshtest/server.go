// Package sshtest spins up a minimal in-process SSH server for exercising
// the client-facing packages end-to-end, without a real sshd. It accepts
// password auth for a fixed credential pair, runs "exec" requests through
// the host shell, serves "shell" sessions backed by a pipe (no real PTY —
// the client code under test only depends on channel byte semantics, not
// terminal control sequences), and dials out for "direct-tcpip" requests so
// port-forwarding tests have a real tunnel endpoint to hit.
//
// This is test-only infrastructure; it is not part of the public API and is
// grounded on the teacher's internal/tunnel/server.go handshake/channel
// handling, run here as a client-facing "remote" instead of a reverse
// tunnel.
package sshtest

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net"
	"os/exec"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

const (
	Username = "tester"
	Password = "s3cret"
)

// Server is a running test SSH server.
type Server struct {
	Addr     string
	listener net.Listener
	wg       sync.WaitGroup
}

// Start launches the server on 127.0.0.1:0 and returns once it is
// listening. It is torn down automatically via t.Cleanup.
func Start(t *testing.T) *Server {
	t.Helper()

	signer := newHostKey(t)
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == Username && string(pass) == Password {
				return nil, nil
			}
			return nil, &ssh.PermissionRejectedError{}
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("sshtest: listen: %v", err)
	}

	s := &Server{Addr: ln.Addr().String(), listener: ln}
	s.wg.Add(1)
	go s.acceptLoop(cfg)

	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *Server) acceptLoop(cfg *ssh.ServerConfig) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, cfg)
	}
}

func (s *Server) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		switch newCh.ChannelType() {
		case "session":
			go handleSession(newCh)
		case "direct-tcpip":
			go handleDirectTCPIP(newCh)
		default:
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

func handleSession(newCh ssh.NewChannel) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			ssh.Unmarshal(req.Data, &payload)
			if req.WantReply {
				req.Reply(true, nil)
			}
			runExec(ch, payload.Command)
			return
		case "pty-req":
			if req.WantReply {
				req.Reply(true, nil)
			}
		case "shell":
			if req.WantReply {
				req.Reply(true, nil)
			}
			runShell(ch)
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runExec runs command via /bin/sh -c, streams stdout/stderr into the
// channel (stderr on extended data stream 1), and sends an exit-status
// message.
func runExec(ch ssh.Channel, command string) {
	cmd := exec.Command("/bin/sh", "-c", command)
	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		sendExitStatus(ch, 127)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(ch, stdout) }()
	go func() { defer wg.Done(); io.Copy(ch.Stderr(), stderr) }()
	wg.Wait()

	code := 0
	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = 1
		}
	}
	sendExitStatus(ch, uint32(code))
}

func sendExitStatus(ch ssh.Channel, code uint32) {
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{code}))
}

// runShell echoes back whatever is written to it, unchanged, simulating an
// interactive shell without allocating a real PTY.
func runShell(ch ssh.Channel) {
	buf := make([]byte, 4096)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			ch.Write(buf[:n])
		}
		if err != nil {
			sendExitStatus(ch, 0)
			return
		}
	}
}

func handleDirectTCPIP(newCh ssh.NewChannel) {
	var payload struct {
		Addr       string
		Port       uint32
		OriginAddr string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err != nil {
		newCh.Reject(ssh.ConnectionFailed, "bad payload")
		return
	}

	target := net.JoinHostPort(payload.Addr, itoa(payload.Port))
	conn, err := net.Dial("tcp", target)
	if err != nil {
		newCh.Reject(ssh.ConnectionFailed, err.Error())
		return
	}

	ch, reqs, err := newCh.Accept()
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(ch, conn) }()
	go func() { defer wg.Done(); io.Copy(conn, ch) }()
	wg.Wait()
	ch.Close()
	conn.Close()
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newHostKey(t *testing.T) ssh.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("sshtest: generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("sshtest: signer from key: %v", err)
	}
	return signer
}
