// Package toolsurface is the thin validation/orchestration layer over the
// session, command, and shell registries and the port forwarder (spec
// §4.9). It validates arguments, consults the registries, performs SSH
// operations through a session's shared Handle, and packages response DTOs
// exactly as spec §6 describes. It carries no business logic beyond that
// orchestration.
package toolsurface

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/sshremote/ssh-mcp-server/internal/commands"
	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/forward"
	"github.com/sshremote/ssh-mcp-server/internal/sessions"
	"github.com/sshremote/ssh-mcp-server/internal/shells"
	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
)

// Engine wires the four registries and the SSH client facade into the tool
// surface. One Engine is shared by every tool invocation in the process.
type Engine struct {
	Sessions *sessions.Registry
	Commands *commands.Registry
	Shells   *shells.Registry
	Forwards *forward.Registry

	// reconnect collapses concurrent ssh_connect(session_id=...) reconnect
	// attempts for the same stale session id (SPEC_FULL.md domain stack:
	// golang.org/x/sync/singleflight).
	reconnect singleflight.Group

	paramsMu sync.Mutex
	params   map[string]connectParams
}

// New creates an Engine with fresh, empty registries.
func New() *Engine {
	return &Engine{
		Sessions: sessions.New(),
		Commands: commands.New(commands.DefaultMaxPerSession),
		Shells:   shells.New(),
		Forwards: forward.New(),
		params:   make(map[string]connectParams),
	}
}

// connectParams records what a session was dialed with, so a stale handle
// can be transparently redialed with the same parameters
// (SPEC_FULL.md "ssh_connect reconnect-on-stale-handle").
type connectParams struct {
	host, username string
	port           int
	strategy       sshclient.Strategy
	cfg            config.Connect
	agentID, name  string
	persistent     bool
}

func (e *Engine) rememberParams(id string, p connectParams) {
	e.paramsMu.Lock()
	e.params[id] = p
	e.paramsMu.Unlock()
}

func (e *Engine) forgetParams(id string) {
	e.paramsMu.Lock()
	delete(e.params, id)
	e.paramsMu.Unlock()
}

// teardownSession cancels/closes everything owned by id and disconnects
// the handle, returning the counts ssh_disconnect_agent reports.
func (e *Engine) teardownSession(id string) (commandsCancelled int) {
	commandsCancelled = e.Commands.TeardownSession(id)
	e.Shells.CloseSession(id)
	e.Forwards.StopSession(id)

	_, handle, err := e.Sessions.Remove(id)
	if err == nil && handle != nil {
		if derr := handle.Disconnect(); derr != nil {
			log.Warn().Str("session_id", id).Err(derr).Msg("graceful disconnect failed")
		}
	}
	e.forgetParams(id)
	return commandsCancelled
}

// reconnectStale redials a session transparently using its original
// parameters, replacing the handle in place. Concurrent reconnects for the
// same id are collapsed via singleflight.
func (e *Engine) reconnectStale(ctx context.Context, id string) error {
	_, err, _ := e.reconnect.Do(id, func() (interface{}, error) {
		e.paramsMu.Lock()
		params, ok := e.params[id]
		e.paramsMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("ssh: no recorded connect parameters for session %s", id)
		}
		res, err := sshclient.ConnectWithRetry(ctx, params.host, params.port, params.username, params.strategy, params.cfg)
		if err != nil {
			return nil, err
		}
		if err := e.Sessions.ReplaceHandle(id, res.Handle, time.Now().UTC(), res.RetryAttempts); err != nil {
			res.Handle.Disconnect()
			return nil, err
		}
		return nil, nil
	})
	return err
}

func newID() string { return uuid.NewString() }
