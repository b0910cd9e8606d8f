package toolsurface

import (
	"fmt"

	"github.com/sshremote/ssh-mcp-server/internal/commands"
	"github.com/sshremote/ssh-mcp-server/internal/config"
)

// Execute implements ssh_execute (spec §6, §4.6): non-blocking, starts the
// scheduler task and returns immediately.
func (e *Engine) Execute(sessionID, command string, timeoutSecs float64) (ExecuteResult, error) {
	info, handle, err := e.Sessions.Get(sessionID)
	if err != nil {
		return ExecuteResult{}, NotFoundErr(sessionID)
	}
	e.Sessions.Touch(sessionID)

	timeout := config.CommandTimeout(timeoutSecs)
	rec, err := e.Commands.Start(sessionID, command, handle, timeout)
	if err != nil {
		return ExecuteResult{}, err
	}

	return ExecuteResult{
		CommandID: rec.ID,
		SessionID: sessionID,
		AgentID:   info.AgentID,
		Command:   command,
		StartedAt: isoMilli(rec.StartedAt),
		Message:   fmt.Sprintf("Command started with ID %s", rec.ID),
	}, nil
}

// minWaitTimeout/maxWaitTimeout bound ssh_get_command_output's wait_timeout_secs
// per spec §6/§8.
const (
	minWaitTimeout = 1
	maxWaitTimeout = 300
	defaultWaitTimeout = 30
)

// WaitTimeoutError formats the taxonomy string for an out-of-range wait.
func WaitTimeoutError() error {
	return fmt.Errorf("Wait timeout must be between 1 and 300 seconds")
}

// GetCommandOutput implements ssh_get_command_output (spec §6, §4.6
// "Polling contract"). waitTimeoutSecs is nil when the caller omitted it
// (defaults to 30s); an explicit 0 is distinct from omission and must be
// rejected, per spec §8's "0 and 301 rejected" boundary.
func (e *Engine) GetCommandOutput(commandID string, wait bool, waitTimeoutSecs *int) (CommandOutput, error) {
	resolvedWait := defaultWaitTimeout
	if wait {
		if waitTimeoutSecs != nil {
			resolvedWait = *waitTimeoutSecs
		}
		if resolvedWait < minWaitTimeout || resolvedWait > maxWaitTimeout {
			return CommandOutput{}, WaitTimeoutError()
		}
	}

	var (
		snap commands.Snapshot
		err  error
	)
	if wait {
		snap, err = e.Commands.WaitFor(commandID, secondsToDuration(resolvedWait))
	} else {
		snap, err = e.Commands.Get(commandID)
	}
	if err != nil {
		return CommandOutput{}, commands.NotFoundError(commandID)
	}
	e.maybeHealthCheck(snap.SessionID)

	return CommandOutput{
		CommandID: snap.ID,
		Status:    string(snap.Status),
		Stdout:    string(snap.Stdout),
		Stderr:    string(snap.Stderr),
		ExitCode:  snap.ExitCode,
		Error:     snap.Error,
		TimedOut:  snap.TimedOut,
	}, nil
}

// ListCommands implements ssh_list_commands (spec §6).
func (e *Engine) ListCommands(sessionID string, status string) ListCommandsResult {
	snaps := e.Commands.List(commands.ListFilter{SessionID: sessionID, Status: commands.Status(status)})
	out := make([]CommandSummary, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, CommandSummary{
			CommandID: s.ID,
			SessionID: s.SessionID,
			Command:   s.Command,
			Status:    string(s.Status),
			StartedAt: isoMilli(s.StartedAt),
		})
	}
	return ListCommandsResult{Commands: out, Count: len(out)}
}

// CancelCommand implements ssh_cancel_command (spec §6, §4.6 "Cancel
// contract").
func (e *Engine) CancelCommand(commandID string) (CancelResult, error) {
	cancelled, snap, err := e.Commands.Cancel(commandID)
	if err != nil {
		return CancelResult{}, commands.NotFoundError(commandID)
	}

	message := fmt.Sprintf("Command %s cancelled", commandID)
	if !cancelled {
		message = fmt.Sprintf("Command is not running (status: %s)", snap.Status)
	}

	return CancelResult{
		CommandID: commandID,
		Cancelled: cancelled,
		Message:   message,
		Stdout:    string(snap.Stdout),
		Stderr:    string(snap.Stderr),
	}, nil
}
