package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sshremote/ssh-mcp-server/internal/toolsurface"
)

// dispatch routes one request to the matching Engine operation (spec §6's
// tool table), unmarshaling args into the shape each tool declares and
// packaging its DTO as the response result. This is pure plumbing — no
// orchestration logic lives here, only argument decoding and routing.
func dispatch(ctx context.Context, e *toolsurface.Engine, req request) (interface{}, error) {
	switch req.Tool {
	case "ssh_connect":
		var a struct {
			Address      string  `json:"address"`
			Username     string  `json:"username"`
			Password     string  `json:"password"`
			KeyPath      string  `json:"key_path"`
			Name         string  `json:"name"`
			Persistent   bool    `json:"persistent"`
			TimeoutSecs  float64 `json:"timeout_secs"`
			MaxRetries   int     `json:"max_retries"`
			RetryDelayMS int     `json:"retry_delay_ms"`
			Compress     *bool   `json:"compress"`
			AgentID      string  `json:"agent_id"`
			SessionID    string  `json:"session_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.Connect(ctx, toolsurface.ConnectArgs{
			Address: a.Address, Username: a.Username, Password: a.Password,
			KeyPath: a.KeyPath, Name: a.Name, Persistent: a.Persistent,
			TimeoutSecs: a.TimeoutSecs, MaxRetries: a.MaxRetries,
			RetryDelayMS: a.RetryDelayMS, Compress: a.Compress,
			AgentID: a.AgentID, SessionID: a.SessionID,
		})

	case "ssh_execute":
		var a struct {
			SessionID   string  `json:"session_id"`
			Command     string  `json:"command"`
			TimeoutSecs float64 `json:"timeout_secs"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.Execute(a.SessionID, a.Command, a.TimeoutSecs)

	case "ssh_get_command_output":
		var a struct {
			CommandID       string `json:"command_id"`
			Wait            bool   `json:"wait"`
			WaitTimeoutSecs *int   `json:"wait_timeout_secs"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.GetCommandOutput(a.CommandID, a.Wait, a.WaitTimeoutSecs)

	case "ssh_list_commands":
		var a struct {
			SessionID string `json:"session_id"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.ListCommands(a.SessionID, a.Status), nil

	case "ssh_cancel_command":
		var a struct {
			CommandID string `json:"command_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.CancelCommand(a.CommandID)

	case "ssh_forward":
		var a struct {
			SessionID     string `json:"session_id"`
			LocalPort     uint16 `json:"local_port"`
			RemoteAddress string `json:"remote_address"`
			RemotePort    uint16 `json:"remote_port"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.Forward(a.SessionID, a.LocalPort, a.RemoteAddress, a.RemotePort)

	case "ssh_disconnect":
		var a struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.Disconnect(a.SessionID)

	case "ssh_list_sessions":
		var a struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.ListSessions(a.AgentID), nil

	case "ssh_disconnect_agent":
		var a struct {
			AgentID string `json:"agent_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.DisconnectAgent(a.AgentID), nil

	case "ssh_shell_open":
		var a struct {
			SessionID string `json:"session_id"`
			TermType  string `json:"term_type"`
			Cols      int    `json:"cols"`
			Rows      int    `json:"rows"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.ShellOpen(a.SessionID, a.TermType, a.Cols, a.Rows)

	case "ssh_shell_write":
		var a struct {
			ShellID string `json:"shell_id"`
			Data    string `json:"data"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.ShellWrite(a.ShellID, []byte(a.Data))

	case "ssh_shell_read":
		var a struct {
			ShellID string `json:"shell_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.ShellRead(a.ShellID)

	case "ssh_shell_close":
		var a struct {
			ShellID string `json:"shell_id"`
		}
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, err
		}
		return e.ShellClose(a.ShellID)

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Tool)
	}
}
