package toolsurface

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sshremote/ssh-mcp-server/internal/config"
)

// janitorTickDivisor sets how often the inactivity sweep runs: every
// inactivity timeout / janitorTickDivisor (at least one second). Grounded on
// the teacher's internal/terminal/session.go idle-ticker goroutine (there: a
// fixed one-minute tick; here: a fraction of the configured inactivity
// timeout so the sweep stays responsive as operators tune that setting).
const janitorTickDivisor = 6

// RunInactivityJanitor scans non-persistent sessions and disconnects ones
// idle past SSH_INACTIVITY_TIMEOUT (SPEC_FULL.md "Inactivity janitor"
// supplement). It blocks until ctx is cancelled; callers run it in its own
// goroutine for the lifetime of the process.
func (e *Engine) RunInactivityJanitor(ctx context.Context) {
	timeout := config.InactivityTimeout()
	tick := timeout / janitorTickDivisor
	if tick < time.Second {
		tick = time.Second
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-timeout)
			for _, id := range e.Sessions.IdleSince(cutoff) {
				log.Info().Str("session_id", id).Dur("inactivity_timeout", timeout).Msg("closing idle session")
				e.teardownSession(id)
			}
		}
	}
}

// healthCheckInterval is how often a session's liveness is re-verified
// opportunistically (SPEC_FULL.md "ssh_health_check (internal only)"
// supplement): at most once per SSH_INACTIVITY_TIMEOUT/3.
func healthCheckInterval() time.Duration {
	return config.InactivityTimeout() / 3
}

// maybeHealthCheck runs a keepalive global request against the session's
// handle if it hasn't been checked recently, recording the observed
// liveness. Called opportunistically from ssh_list_sessions and
// ssh_get_command_output per the SPEC_FULL.md supplement. Errors are
// swallowed into an unhealthy recording — a failed keepalive is evidence of
// staleness, not a tool-surface error.
func (e *Engine) maybeHealthCheck(id string) {
	info, handle, err := e.Sessions.Get(id)
	if err != nil || handle == nil {
		return
	}
	if !info.LastHealthCheck.IsZero() && time.Since(info.LastHealthCheck) < healthCheckInterval() {
		return
	}

	healthy := handle.Keepalive() == nil
	e.Sessions.SetHealth(id, healthy, time.Now().UTC())
}
