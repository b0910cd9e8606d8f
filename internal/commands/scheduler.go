package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
)

// run is the per-command background task spawned by Registry.Start (spec
// §4.6 "Scheduler task"). It opens an exec channel, pumps channel messages
// into the record's output buffer, and honors cancellation and timeout
// ahead of new data — mirrored as three selects in sequence below, each adding
// one more case, so a ready cancellation or timeout is always observed
// before a ready data message even though Go's select picks uniformly
// among ready cases.
func run(ctx context.Context, rec *Record, handle *sshclient.Handle, timeout time.Duration) {
	log.Debug().Str("command_id", rec.ID).Str("session_id", rec.SessionID).Msg("command started")

	ch, reqs, err := handle.Exec(rec.Command)
	if err != nil {
		log.Warn().Str("command_id", rec.ID).Str("session_id", rec.SessionID).Err(err).Msg("command exec failed")
		rec.fail(err.Error())
		return
	}
	defer ch.Close()

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	reqsDone := make(chan struct{})
	exitCh := make(chan int32, 1)

	go pumpStream(ch, rec.output.appendStdout, stdoutDone)
	go pumpStream(ch.Stderr(), rec.output.appendStderr, stderrDone)
	go pumpExitStatus(reqs, exitCh, reqsDone)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	finish := func(status Status) {
		ch.Close()
		<-stdoutDone
		<-stderrDone
		<-reqsDone
		rec.status.Set(status)
		log.Debug().Str("command_id", rec.ID).Str("status", string(status)).Msg("command finished")
	}

	for {
		// Priority 1: cancellation.
		select {
		case <-rec.cancelled:
			finish(Cancelled)
			return
		default:
		}

		// Priority 2: timeout.
		select {
		case <-rec.cancelled:
			finish(Cancelled)
			return
		case <-timer.C:
			rec.markTimedOut()
			rec.setExitCode(-1)
			finish(Completed)
			return
		default:
		}

		// Priority 3: everything else, including new data/exit/close.
		select {
		case <-rec.cancelled:
			finish(Cancelled)
			return
		case <-timer.C:
			rec.markTimedOut()
			rec.setExitCode(-1)
			finish(Completed)
			return
		case code := <-exitCh:
			rec.setExitCode(code)
		case <-reqsDone:
			// An exit status sent just before the request stream closed may
			// still be buffered; record it before publishing.
			select {
			case code := <-exitCh:
				rec.setExitCode(code)
			default:
			}
			<-stdoutDone
			<-stderrDone
			rec.status.Set(Completed)
			log.Debug().Str("command_id", rec.ID).Str("status", string(Completed)).Msg("command finished")
			return
		case <-ctx.Done():
			finish(Cancelled)
			return
		}
	}
}

type byteReader interface {
	Read(p []byte) (int, error)
}

// pumpStream copies from r into append, closing done on EOF or any read
// error — the channel's own Close (via finish) is what unblocks a pending
// Read when the scheduler decides to stop early.
func pumpStream(r byteReader, appendFn func([]byte), done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			appendFn(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

// pumpExitStatus drains SSH requests on the exec channel, extracting
// "exit-status" and replying to anything that wants a reply so the server
// is never left waiting.
func pumpExitStatus(reqs <-chan *ssh.Request, exitCh chan<- int32, done chan<- struct{}) {
	defer close(done)
	for req := range reqs {
		if req.Type == "exit-status" {
			var payload struct{ Status uint32 }
			if err := ssh.Unmarshal(req.Data, &payload); err == nil {
				select {
				case exitCh <- int32(payload.Status):
				default:
				}
			}
		}
		if req.WantReply {
			req.Reply(false, nil)
		}
	}
}
