package toolsurface

import "time"

// SessionInfo mirrors spec §3/§6's SessionInfo DTO.
type SessionInfo struct {
	SessionID       string     `json:"session_id"`
	Name            string     `json:"name,omitempty"`
	AgentID         string     `json:"agent_id,omitempty"`
	Host            string     `json:"host"`
	Username        string     `json:"username"`
	ConnectedAt     time.Time  `json:"connected_at"`
	CommandTimeout  float64    `json:"command_timeout_secs"`
	RetryAttempts   int        `json:"retry_attempts"`
	Compression     bool       `json:"compression"`
	Persistent      bool       `json:"persistent"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
	Healthy         *bool      `json:"healthy,omitempty"`
}

// ConnectResult is the response for ssh_connect.
type ConnectResult struct {
	SessionID     string `json:"session_id"`
	AgentID       string `json:"agent_id,omitempty"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
	RetryAttempts int    `json:"retry_attempts"`
}

// ExecuteResult is the response for ssh_execute.
type ExecuteResult struct {
	CommandID string `json:"command_id"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id,omitempty"`
	Command   string `json:"command"`
	StartedAt string `json:"started_at"`
	Message   string `json:"message"`
}

// CommandOutput is the response for ssh_get_command_output.
type CommandOutput struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  *int32 `json:"exit_code"`
	Error     string `json:"error,omitempty"`
	TimedOut  bool   `json:"timed_out"`
}

// CommandSummary is one entry of ssh_list_commands.
type CommandSummary struct {
	CommandID string `json:"command_id"`
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

// ListCommandsResult is the response for ssh_list_commands.
type ListCommandsResult struct {
	Commands []CommandSummary `json:"commands"`
	Count    int              `json:"count"`
}

// CancelResult is the response for ssh_cancel_command.
type CancelResult struct {
	CommandID string `json:"command_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
}

// ForwardResult is the response for ssh_forward.
type ForwardResult struct {
	LocalAddress  string `json:"local_address"`
	RemoteAddress string `json:"remote_address"`
	Active        bool   `json:"active"`
}

// ListSessionsResult is the response for ssh_list_sessions.
type ListSessionsResult struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// DisconnectAgentResult is the response for ssh_disconnect_agent.
type DisconnectAgentResult struct {
	AgentID              string `json:"agent_id"`
	SessionsDisconnected int    `json:"sessions_disconnected"`
	CommandsCancelled    int    `json:"commands_cancelled"`
	Message              string `json:"message"`
}

// ShellOpenResult is the response for ssh_shell_open.
type ShellOpenResult struct {
	ShellID   string `json:"shell_id"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id,omitempty"`
	TermType  string `json:"term_type"`
	Message   string `json:"message"`
}

// ShellReadResult is the response for ssh_shell_read.
type ShellReadResult struct {
	ShellID string `json:"shell_id"`
	Data    string `json:"data"`
	Status  string `json:"status"`
}

// ShellCloseResult is the response for ssh_shell_close.
type ShellCloseResult struct {
	ShellID string `json:"shell_id"`
	Closed  bool   `json:"closed"`
	Message string `json:"message"`
}

// isoMilli formats t as ISO 8601 UTC with millisecond precision, per spec
// §6 ssh_execute.started_at.
func isoMilli(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
