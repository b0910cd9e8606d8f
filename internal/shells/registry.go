// Package shells implements the interactive-shell registry and worker
// (spec §4.7, §3): per-session PTY-backed channels with a decoupled reader
// task, a drain-on-read output buffer, and a write sink onto the channel.
// Grounded on the teacher's internal/terminal package (Session interface,
// PTY-backed bridging) generalized from a websocket bridge to the
// tool-call read/write/close surface the spec describes.
package shells

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
)

// ErrNotFound is returned by Get/Write/Read/Close for an unknown shell id.
var ErrNotFound = errors.New("shell not found")

// MaxPerSession is the hard cap spec §4.7 fixes at 10.
const MaxPerSession = 10

// NotFoundError formats the taxonomy string spec §6 requires.
func NotFoundError(id string) error {
	return fmt.Errorf("No open shell with ID: %s", id)
}

// CapacityError formats the taxonomy string for a session already at its
// shell concurrency cap.
func CapacityError() error {
	return fmt.Errorf("Maximum concurrent shells (%d) reached for session", MaxPerSession)
}

// Status is the lifecycle state of a shell.
type Status string

const (
	Open   Status = "open"
	Closed Status = "closed"
)

// Shell is an open interactive PTY session.
type Shell struct {
	ID         string
	SessionID  string
	TermType   string
	Cols, Rows int
	OpenedAt   time.Time

	ch ssh.Channel

	buf       outputBuffer
	closeOnce sync.Once
	status    statusHolder
}

type statusHolder struct {
	mu    sync.Mutex
	value Status
}

func (s *statusHolder) get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *statusHolder) set(v Status) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// outputBuffer is the drain-on-read accumulator: a Read call returns and
// clears everything accumulated since the previous Read, which is the
// semantics spec §4.7/§9 call for ("drain vs. tail").
type outputBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (o *outputBuffer) append(p []byte) {
	if len(p) == 0 {
		return
	}
	o.mu.Lock()
	o.data = append(o.data, p...)
	o.mu.Unlock()
}

func (o *outputBuffer) drain() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.data) == 0 {
		return nil
	}
	out := o.data
	o.data = nil
	return out
}

// Registry is the concurrent shell-id map plus its session-id secondary
// index.
type Registry struct {
	mu        sync.RWMutex
	shells    map[string]*Shell
	bySession map[string]map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		shells:    make(map[string]*Shell),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Open requests a channel+PTY+shell on handle and registers the result
// (spec §4.7 "Open"). It refuses to open beyond MaxPerSession shells for
// sessionID.
func (r *Registry) Open(sessionID, termType string, cols, rows int, handle *sshclient.Handle) (*Shell, error) {
	r.mu.Lock()
	if set := r.bySession[sessionID]; len(set) >= MaxPerSession {
		r.mu.Unlock()
		return nil, CapacityError()
	}
	r.mu.Unlock()

	rawCh, reqs, err := handle.OpenShell(termType, cols, rows)
	if err != nil {
		return nil, err
	}

	sh := &Shell{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TermType:  termType,
		Cols:      cols,
		Rows:      rows,
		OpenedAt:  time.Now().UTC(),
		ch:        rawCh,
	}
	sh.status.set(Open)

	r.mu.Lock()
	r.shells[sh.ID] = sh
	set, ok := r.bySession[sessionID]
	if !ok {
		set = make(map[string]struct{})
		r.bySession[sessionID] = set
	}
	set[sh.ID] = struct{}{}
	r.mu.Unlock()

	go sh.readLoop(reqs)
	return sh, nil
}

// Get returns the shell record for id.
func (r *Registry) Get(id string) (*Shell, error) {
	r.mu.RLock()
	sh, ok := r.shells[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sh, nil
}

// Write pushes bytes onto the shell's channel (spec §4.7 "Write"): no
// buffering, no framing — the caller controls that.
func (r *Registry) Write(id string, data []byte) error {
	sh, err := r.Get(id)
	if err != nil {
		return err
	}
	if sh.status.get() == Closed {
		return ErrNotFound
	}
	_, err = sh.ch.Write(data)
	return err
}

// ReadResult is what Read returns: the drained bytes and the current
// status.
type ReadResult struct {
	Data   []byte
	Status Status
}

// Read drains the shell's output buffer and reports its current status
// (spec §4.7 "Read"). Successive reads with no intervening channel bytes
// return empty data; this is idempotent, matching spec §8 property 7.
func (r *Registry) Read(id string) (ReadResult, error) {
	sh, err := r.Get(id)
	if err != nil {
		return ReadResult{}, err
	}
	data := sh.buf.drain()
	return ReadResult{Data: data, Status: sh.status.get()}, nil
}

// Close signals the reader task to stop and closes the channel (spec §4.7
// "Close"). It removes the shell from the session's capacity-counting
// secondary index so the slot is freed for a new shell, but leaves the
// primary entry resolvable in a Closed state — this is what makes repeated
// Close calls idempotently report closed=true (spec §6 round-trip law)
// while Write against the same id still fails not-found (spec §8 scenario
// 7). A genuinely unknown id still reports ErrNotFound.
func (r *Registry) Close(id string) (bool, error) {
	sh, err := r.Get(id)
	if err != nil {
		return false, err
	}

	sh.closeOnce.Do(func() {
		sh.ch.Close()
		sh.status.set(Closed)

		r.mu.Lock()
		if set, ok := r.bySession[sh.SessionID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.bySession, sh.SessionID)
			}
		}
		r.mu.Unlock()
	})

	return true, nil
}

// CloseSession closes every shell currently counted against sessionID's
// capacity (spec §4.5 teardown fan-out).
func (r *Registry) CloseSession(sessionID string) {
	r.mu.RLock()
	set := r.bySession[sessionID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Close(id)
	}
}

// readLoop pumps channel Data and Extended-data into the shared output
// buffer (stderr merged into the visible stream per spec §4.7 — interactive
// shells commonly interleave the two) until Close/EOF, at which point the
// shell is marked Closed. The request stream is drained concurrently so the
// server is never left waiting on a reply.
func (sh *Shell) readLoop(reqs <-chan *ssh.Request) {
	defer sh.status.set(Closed)

	dataDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go pump(sh.ch, sh.buf.append, dataDone)
	go pump(sh.ch.Stderr(), sh.buf.append, stderrDone)

	for req := range reqs {
		if req.WantReply {
			req.Reply(false, nil)
		}
	}
	<-dataDone
	<-stderrDone
}

func pump(r reader, appendFn func([]byte), done chan<- struct{}) {
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

type reader interface {
	Read(p []byte) (int, error)
}
