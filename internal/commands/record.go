package commands

import (
	"context"
	"sync"
	"time"
)

// Record is a tracked background execution (spec §3 "Async command"). The
// immutable fields are set once at creation; the mutable fields are owned
// by the scheduler task and observed by pollers through snapshots.
type Record struct {
	ID        string
	SessionID string
	Command   string
	StartedAt time.Time

	output *outputBuffer
	status *statusBox

	mu       sync.Mutex
	exitCode *int32
	errMsg   string
	timedOut bool

	cancelOnce sync.Once
	cancel     context.CancelFunc
	cancelled  chan struct{} // closed exactly once, by requestCancel
}

func newRecord(id, sessionID, command string) (*Record, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Record{
		ID:        id,
		SessionID: sessionID,
		Command:   command,
		StartedAt: time.Now().UTC(),
		output:    &outputBuffer{},
		status:    newStatusBox(Running),
		cancel:    cancel,
		cancelled: make(chan struct{}),
	}, ctx
}

// Snapshot is the read-only view returned to callers (ssh_get_command_output,
// ssh_list_commands, ssh_cancel_command).
type Snapshot struct {
	ID        string
	SessionID string
	Command   string
	StartedAt time.Time
	Status    Status
	Stdout    []byte
	Stderr    []byte
	ExitCode  *int32
	Error     string
	TimedOut  bool
}

func (r *Record) snapshot() Snapshot {
	stdout, stderr := r.output.snapshot()
	r.mu.Lock()
	exitCode := r.exitCode
	errMsg := r.errMsg
	timedOut := r.timedOut
	r.mu.Unlock()
	return Snapshot{
		ID:        r.ID,
		SessionID: r.SessionID,
		Command:   r.Command,
		StartedAt: r.StartedAt,
		Status:    r.status.Get(),
		Stdout:    stdout,
		Stderr:    stderr,
		ExitCode:  exitCode,
		Error:     errMsg,
		TimedOut:  timedOut,
	}
}

func (r *Record) setExitCode(code int32) {
	r.mu.Lock()
	if r.exitCode == nil {
		c := code
		r.exitCode = &c
	}
	r.mu.Unlock()
}

func (r *Record) markTimedOut() {
	r.mu.Lock()
	r.timedOut = true
	r.mu.Unlock()
}

func (r *Record) fail(message string) {
	r.mu.Lock()
	r.errMsg = message
	r.mu.Unlock()
	r.status.Set(Failed)
}

// requestCancel fires the single-shot cancellation trigger. Safe to call
// more than once; only the first call has effect (spec §5 at-most-once).
func (r *Record) requestCancel() {
	r.cancelOnce.Do(func() {
		close(r.cancelled)
		r.cancel()
	})
}
