package toolsurface

import (
	"fmt"

	"github.com/sshremote/ssh-mcp-server/internal/shells"
)

// ShellOpen implements ssh_shell_open (spec §6, §4.7).
func (e *Engine) ShellOpen(sessionID, termType string, cols, rows int) (ShellOpenResult, error) {
	if termType == "" {
		termType = "xterm"
	}
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	info, handle, err := e.Sessions.Get(sessionID)
	if err != nil {
		return ShellOpenResult{}, NotFoundErr(sessionID)
	}
	e.Sessions.Touch(sessionID)

	sh, err := e.Shells.Open(sessionID, termType, cols, rows, handle)
	if err != nil {
		return ShellOpenResult{}, err
	}

	return ShellOpenResult{
		ShellID:   sh.ID,
		SessionID: sessionID,
		AgentID:   info.AgentID,
		TermType:  termType,
		Message:   fmt.Sprintf("Shell %s opened", sh.ID),
	}, nil
}

// ShellWrite implements ssh_shell_write (spec §6, §4.7 "Write").
func (e *Engine) ShellWrite(shellID string, data []byte) (string, error) {
	if err := e.Shells.Write(shellID, data); err != nil {
		if err == shells.ErrNotFound {
			return "", shells.NotFoundError(shellID)
		}
		return "", err
	}
	return fmt.Sprintf("Wrote %d byte(s) to shell %s", len(data), shellID), nil
}

// ShellRead implements ssh_shell_read (spec §6, §4.7 "Read" — drains the
// output buffer).
func (e *Engine) ShellRead(shellID string) (ShellReadResult, error) {
	res, err := e.Shells.Read(shellID)
	if err != nil {
		return ShellReadResult{}, shells.NotFoundError(shellID)
	}
	return ShellReadResult{
		ShellID: shellID,
		Data:    string(res.Data),
		Status:  string(res.Status),
	}, nil
}

// ShellClose implements ssh_shell_close (spec §6, §4.7 "Close").
// Idempotent: closing twice returns closed=true both times.
func (e *Engine) ShellClose(shellID string) (ShellCloseResult, error) {
	closed, err := e.Shells.Close(shellID)
	if err != nil {
		return ShellCloseResult{}, shells.NotFoundError(shellID)
	}
	return ShellCloseResult{
		ShellID: shellID,
		Closed:  closed,
		Message: fmt.Sprintf("Shell %s closed", shellID),
	}, nil
}
