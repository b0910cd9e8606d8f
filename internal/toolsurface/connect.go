package toolsurface

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sshremote/ssh-mcp-server/internal/config"
	"github.com/sshremote/ssh-mcp-server/internal/sessions"
	"github.com/sshremote/ssh-mcp-server/internal/sshclient"
)

// ConnectArgs mirrors spec §6's ssh_connect input.
type ConnectArgs struct {
	Address      string
	Username     string
	Password     string
	KeyPath      string
	Name         string
	Persistent   bool
	TimeoutSecs  float64
	MaxRetries   int
	RetryDelayMS int
	Compress     *bool
	AgentID      string
	SessionID    string // reuse hint
}

// Connect implements ssh_connect (spec §6, §4.3, §4.4, and the
// SPEC_FULL.md reconnect-on-stale-handle supplement).
func (e *Engine) Connect(ctx context.Context, args ConnectArgs) (ConnectResult, error) {
	if args.SessionID != "" {
		if info, _, err := e.Sessions.Get(args.SessionID); err == nil {
			if info.Healthy {
				return ConnectResult{
					SessionID:     info.ID,
					AgentID:       info.AgentID,
					Message:       fmt.Sprintf("Reusing existing session %s", info.ID),
					Authenticated: true,
					RetryAttempts: 0,
				}, nil
			}
			if err := e.reconnectStale(ctx, args.SessionID); err != nil {
				return ConnectResult{}, err
			}
			info, _, _ = e.Sessions.Get(args.SessionID)
			return ConnectResult{
				SessionID:     info.ID,
				AgentID:       info.AgentID,
				Message:       fmt.Sprintf("Reconnected session %s", info.ID),
				Authenticated: true,
				RetryAttempts: info.RetryAttempts,
			}, nil
		}
	}

	host, port, err := sshclient.ParseAddress(args.Address)
	if err != nil {
		return ConnectResult{}, err
	}

	strategy := selectStrategy(args)
	cfg := config.ResolveConnect(args.TimeoutSecs, args.MaxRetries, args.RetryDelayMS, args.Compress)

	res, err := sshclient.ConnectWithRetry(ctx, host, port, args.Username, strategy, cfg)
	if err != nil {
		log.Warn().Str("host", host).Int("port", port).Err(err).Msg("ssh_connect failed")
		return ConnectResult{}, err
	}

	id := newID()
	now := time.Now().UTC()
	commandTimeout := config.CommandTimeout(0)
	info := sessions.Info{
		ID:             id,
		Name:           args.Name,
		AgentID:        args.AgentID,
		Host:           host,
		Port:           port,
		Username:       args.Username,
		ConnectedAt:    now,
		CommandTimeout: commandTimeout,
		RetryAttempts:  res.RetryAttempts,
		Compression:    cfg.Compress,
		Persistent:     args.Persistent,
		Healthy:        true,
	}
	if err := e.Sessions.Insert(info, res.Handle); err != nil {
		res.Handle.Disconnect()
		return ConnectResult{}, err
	}
	e.rememberParams(id, connectParams{
		host: host, port: port, username: args.Username,
		strategy: strategy, cfg: cfg, agentID: args.AgentID, name: args.Name,
		persistent: args.Persistent,
	})

	log.Info().Str("session_id", id).Str("host", host).Int("retry_attempts", res.RetryAttempts).Msg("ssh session connected")

	return ConnectResult{
		SessionID:     id,
		AgentID:       args.AgentID,
		Message:       fmt.Sprintf("Connected to %s as %s", args.Address, args.Username),
		Authenticated: true,
		RetryAttempts: res.RetryAttempts,
	}, nil
}

// selectStrategy applies spec §4.3's precedence: password-only if supplied,
// else key-only if supplied, else agent-only. There is no fallback across
// methods within a single connect.
func selectStrategy(args ConnectArgs) sshclient.Strategy {
	switch {
	case args.Password != "":
		return sshclient.PasswordStrategy{Password: args.Password}
	case args.KeyPath != "":
		return sshclient.KeyFileStrategy{Path: args.KeyPath}
	default:
		return sshclient.AgentStrategy{}
	}
}

// Disconnect implements ssh_disconnect (spec §6). Idempotent: disconnecting
// an already-removed session is a no-op success.
func (e *Engine) Disconnect(id string) (string, error) {
	if _, _, err := e.Sessions.Get(id); err != nil {
		return fmt.Sprintf("Session %s disconnected successfully", id), nil
	}
	e.teardownSession(id)
	return fmt.Sprintf("Session %s disconnected successfully", id), nil
}

// ListSessions implements ssh_list_sessions (spec §6).
func (e *Engine) ListSessions(agentID string) ListSessionsResult {
	infos := e.Sessions.List(agentID)
	for _, info := range infos {
		e.maybeHealthCheck(info.ID)
	}
	infos = e.Sessions.List(agentID)
	out := make([]SessionInfo, 0, len(infos))
	for _, info := range infos {
		si := SessionInfo{
			SessionID:      info.ID,
			Name:           info.Name,
			AgentID:        info.AgentID,
			Host:           fmt.Sprintf("%s:%d", info.Host, info.Port),
			Username:       info.Username,
			ConnectedAt:    info.ConnectedAt,
			CommandTimeout: info.CommandTimeout.Seconds(),
			RetryAttempts:  info.RetryAttempts,
			Compression:    info.Compression,
			Persistent:     info.Persistent,
		}
		if !info.LastHealthCheck.IsZero() {
			t := info.LastHealthCheck
			si.LastHealthCheck = &t
			h := info.Healthy
			si.Healthy = &h
		}
		out = append(out, si)
	}
	return ListSessionsResult{Sessions: out, Count: len(out)}
}

// DisconnectAgent implements ssh_disconnect_agent (spec §6): bulk teardown
// of every session registered under agentID.
func (e *Engine) DisconnectAgent(agentID string) DisconnectAgentResult {
	ids := e.Sessions.AgentSessions(agentID)
	commandsCancelled := 0
	for _, id := range ids {
		commandsCancelled += e.teardownSession(id)
	}
	return DisconnectAgentResult{
		AgentID:              agentID,
		SessionsDisconnected: len(ids),
		CommandsCancelled:    commandsCancelled,
		Message:              fmt.Sprintf("Disconnected %d session(s) for agent %s", len(ids), agentID),
	}
}

// NotFoundErr is a convenience alias so tool handlers can propagate the
// session-registry taxonomy string.
var NotFoundErr = sessions.NotFoundError
