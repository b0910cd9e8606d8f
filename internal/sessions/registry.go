// Package sessions implements the session registry (spec §4.5, §3): a
// concurrent map of session-id to (metadata, shared SSH handle) with a
// secondary agent-id → set<session-id> index kept atomic with the primary
// map from a reader's perspective. Grounded on the teacher's
// internal/terminal/session.go idle-registry idiom, generalized from a
// single Session interface to the full SessionInfo record the spec
// describes and extended with the agent secondary index §4.5 requires.
package sessions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
)

// ErrNotFound is returned by Get/Remove for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Info is the read-only snapshot of session metadata returned to callers.
type Info struct {
	ID              string
	Name            string
	AgentID         string
	Host            string
	Port            int
	Username        string
	ConnectedAt     time.Time
	CommandTimeout  time.Duration
	RetryAttempts   int
	Compression     bool
	Persistent      bool
	LastHealthCheck time.Time
	Healthy         bool
}

// NotFoundError formats the taxonomy string spec §6 requires.
func NotFoundError(id string) error {
	return fmt.Errorf("No active SSH session with ID: %s", id)
}

type entry struct {
	mu           sync.Mutex
	info         Info
	handle       *sshclient.Handle
	lastActivity time.Time
}

// Registry is the concurrent session map plus its agent-id secondary index.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	byAgent map[string]map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		byAgent: make(map[string]map[string]struct{}),
	}
}

// Insert adds a new session. id must not already exist.
func (r *Registry) Insert(info Info, handle *sshclient.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[info.ID]; exists {
		return fmt.Errorf("session %s already registered", info.ID)
	}

	e := &entry{info: info, handle: handle, lastActivity: time.Now()}
	r.entries[info.ID] = e

	if info.AgentID != "" {
		set, ok := r.byAgent[info.AgentID]
		if !ok {
			set = make(map[string]struct{})
			r.byAgent[info.AgentID] = set
		}
		set[info.ID] = struct{}{}
	}
	return nil
}

// Get returns a snapshot of the session info and its shared handle.
func (r *Registry) Get(id string) (Info, *sshclient.Handle, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	e.mu.Lock()
	info := e.info
	handle := e.handle
	e.mu.Unlock()
	return info, handle, nil
}

// Remove deletes the session from the primary map and the agent index
// atomically, returning the final snapshot and handle so the caller can run
// teardown (cancel commands/shells, then disconnect the handle).
func (r *Registry) Remove(id string) (Info, *sshclient.Handle, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return Info{}, nil, ErrNotFound
	}
	delete(r.entries, id)
	if e.info.AgentID != "" {
		if set, ok := r.byAgent[e.info.AgentID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byAgent, e.info.AgentID)
			}
		}
	}
	r.mu.Unlock()

	e.mu.Lock()
	info := e.info
	handle := e.handle
	e.mu.Unlock()
	return info, handle, nil
}

// ReplaceHandle swaps the handle for an existing session in place — used by
// the reconnect-on-stale-handle path (SPEC_FULL.md) — updating ConnectedAt
// and RetryAttempts to reflect the new dial.
func (r *Registry) ReplaceHandle(id string, handle *sshclient.Handle, connectedAt time.Time, retryAttempts int) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	e.handle = handle
	e.info.ConnectedAt = connectedAt
	e.info.RetryAttempts = retryAttempts
	e.info.Healthy = true
	e.info.LastHealthCheck = connectedAt
	e.mu.Unlock()
	return nil
}

// SetHealth records the outcome of a liveness check.
func (r *Registry) SetHealth(id string, healthy bool, at time.Time) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.info.Healthy = healthy
	e.info.LastHealthCheck = at
	e.mu.Unlock()
}

// Touch records activity on the session, resetting its inactivity clock.
func (r *Registry) Touch(id string) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// List returns a stable snapshot of sessions, optionally filtered by
// agent id (empty string means no filter).
func (r *Registry) List(agentID string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	if agentID != "" {
		for id := range r.byAgent[agentID] {
			ids = append(ids, id)
		}
	} else {
		for id := range r.entries {
			ids = append(ids, id)
		}
	}

	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		e := r.entries[id]
		e.mu.Lock()
		out = append(out, e.info)
		e.mu.Unlock()
	}
	return out
}

// AgentSessions returns all session ids registered under agentID.
func (r *Registry) AgentSessions(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byAgent[agentID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// IdleSince returns session ids whose recorded activity is older than
// cutoff, excluding persistent sessions — the inactivity janitor's source
// of candidates (SPEC_FULL.md "Inactivity janitor" supplement).
func (r *Registry) IdleSince(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, e := range r.entries {
		e.mu.Lock()
		idle := !e.info.Persistent && e.lastActivity.Before(cutoff)
		e.mu.Unlock()
		if idle {
			out = append(out, id)
		}
	}
	return out
}
