package commands

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
)

// ErrNotFound is returned by Get/Cancel for an unknown command id.
var ErrNotFound = errors.New("command not found")

// DefaultMaxPerSession is the per-session concurrency cap (spec §4.6 picks
// 100 within the documented 10..100 range).
const DefaultMaxPerSession = 100

// NotFoundError formats the taxonomy string spec §6 requires.
func NotFoundError(id string) error {
	return fmt.Errorf("No async command found with ID: %s", id)
}

// CapacityError formats the taxonomy string for a session already at its
// concurrency cap.
func CapacityError(max int) error {
	return fmt.Errorf("Maximum concurrent commands (%d) reached for session", max)
}

// Registry is the concurrent command-id map plus its session-id secondary
// index (spec §4.6).
type Registry struct {
	maxPerSession int

	mu        sync.RWMutex
	records   map[string]*Record
	bySession map[string]map[string]struct{}
}

// New creates an empty registry with the given per-session concurrency cap.
// A non-positive max falls back to DefaultMaxPerSession.
func New(maxPerSession int) *Registry {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxPerSession
	}
	return &Registry{
		maxPerSession: maxPerSession,
		records:       make(map[string]*Record),
		bySession:     make(map[string]map[string]struct{}),
	}
}

// Start creates and schedules a new command against handle (spec §4.6
// "Scheduler task"). It refuses to start if sessionID is already at
// capacity.
func (r *Registry) Start(sessionID, command string, handle *sshclient.Handle, timeout time.Duration) (*Record, error) {
	r.mu.Lock()
	if set := r.bySession[sessionID]; len(set) >= r.maxPerSession {
		r.mu.Unlock()
		return nil, CapacityError(r.maxPerSession)
	}

	rec, ctx := newRecord(uuid.NewString(), sessionID, command)
	r.records[rec.ID] = rec
	set, ok := r.bySession[sessionID]
	if !ok {
		set = make(map[string]struct{})
		r.bySession[sessionID] = set
	}
	set[rec.ID] = struct{}{}
	r.mu.Unlock()

	go run(ctx, rec, handle, timeout)
	return rec, nil
}

// Get returns a snapshot of the named command.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return rec.snapshot(), nil
}

// WaitFor blocks until the command reaches a terminal status or waitTimeout
// elapses, whichever comes first (spec §4.6 "Polling contract"). It never
// blocks indefinitely.
func (r *Registry) WaitFor(id string, waitTimeout time.Duration) (Snapshot, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	deadline := time.NewTimer(waitTimeout)
	defer deadline.Stop()

	for {
		status := rec.status.Get()
		if status.Terminal() {
			return rec.snapshot(), nil
		}
		_, notify := rec.status.changed()
		select {
		case <-notify:
		case <-deadline.C:
			return rec.snapshot(), nil
		}
	}
}

// cancelGrace is how long Cancel waits for the scheduler to observe the
// trigger before snapshotting (spec §4.6 "Cancel contract").
const cancelGrace = 2 * time.Second

// Cancel fires the cancellation trigger if the command is Running, waits
// briefly for a status change, then returns the outcome.
func (r *Registry) Cancel(id string) (cancelled bool, snap Snapshot, err error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return false, Snapshot{}, ErrNotFound
	}

	if rec.status.Get().Terminal() {
		return false, rec.snapshot(), nil
	}

	rec.requestCancel()
	deadline := time.NewTimer(cancelGrace)
	defer deadline.Stop()
	_, notify := rec.status.changed()
	select {
	case <-notify:
	case <-deadline.C:
	}
	return true, rec.snapshot(), nil
}

// ListFilter narrows List to matching commands; zero values mean "no
// filter" for that field.
type ListFilter struct {
	SessionID string
	Status    Status
}

// List returns a snapshot of matching commands, ordering unspecified but
// stable within the snapshot.
func (r *Registry) List(filter ListFilter) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	if filter.SessionID != "" {
		for id := range r.bySession[filter.SessionID] {
			ids = append(ids, id)
		}
	} else {
		for id := range r.records {
			ids = append(ids, id)
		}
	}

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		rec := r.records[id]
		snap := rec.snapshot()
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// teardownGrace bounds how long TeardownSession waits for scheduler tasks
// to acknowledge cancellation before the entries are dropped regardless.
const teardownGrace = 500 * time.Millisecond

// TeardownSession cancels every command owned by sessionID and removes them
// from the registry, returning the number that were actually Running (the
// "commands cancelled" count spec §4.6/§6 reports).
func (r *Registry) TeardownSession(sessionID string) int {
	r.mu.Lock()
	set := r.bySession[sessionID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	cancelled := 0
	var wg sync.WaitGroup
	for _, id := range ids {
		r.mu.RLock()
		rec, ok := r.records[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if !rec.status.Get().Terminal() {
			cancelled++
			rec.requestCancel()
			wg.Add(1)
			go func(rec *Record) {
				defer wg.Done()
				deadline := time.NewTimer(teardownGrace)
				defer deadline.Stop()
				_, notify := rec.status.changed()
				select {
				case <-notify:
				case <-deadline.C:
				}
			}(rec)
		}
	}
	wg.Wait()

	r.mu.Lock()
	for _, id := range ids {
		delete(r.records, id)
	}
	delete(r.bySession, sessionID)
	r.mu.Unlock()

	return cancelled
}
