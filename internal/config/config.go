// Package config resolves runtime tunables for the SSH engine: caller value
// wins, else the associated environment variable, else the compiled
// default. Unparseable environment values fall through to the default
// silently.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	EnvConnectTimeout    = "SSH_CONNECT_TIMEOUT"
	EnvCommandTimeout    = "SSH_COMMAND_TIMEOUT"
	EnvMaxRetries        = "SSH_MAX_RETRIES"
	EnvRetryDelayMS      = "SSH_RETRY_DELAY_MS"
	EnvInactivityTimeout = "SSH_INACTIVITY_TIMEOUT"
	EnvCompression       = "SSH_COMPRESSION"
)

// MaxRetryDelay is the hard cap on backoff delay; it is not configurable.
const MaxRetryDelay = 10 * time.Second

// Defaults mirror spec §4.1.
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultCommandTimeout    = 180 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 1000 * time.Millisecond
	DefaultInactivityTimeout = 300 * time.Second
	DefaultCompression       = true
)

// Connect holds the tunables consulted by ssh_connect.
type Connect struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Compress   bool
}

// ResolveConnect applies the caller → env → default chain. A caller value of
// zero for timeoutSecs/retryDelayMS, a non-positive maxRetries, or a nil
// compress pointer is treated as "not set".
func ResolveConnect(timeoutSecs float64, maxRetries int, retryDelayMS int, compress *bool) Connect {
	c := Connect{
		Timeout:    DefaultConnectTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		Compress:   DefaultCompression,
	}

	if v, ok := envDuration(EnvConnectTimeout); ok {
		c.Timeout = v
	}
	if timeoutSecs > 0 {
		c.Timeout = time.Duration(timeoutSecs * float64(time.Second))
	}

	if v, ok := envInt(EnvMaxRetries); ok {
		c.MaxRetries = v
	}
	if maxRetries > 0 {
		c.MaxRetries = maxRetries
	}

	if v, ok := envDurationMS(EnvRetryDelayMS); ok {
		c.RetryDelay = v
	}
	if retryDelayMS > 0 {
		c.RetryDelay = time.Duration(retryDelayMS) * time.Millisecond
	}

	if v, ok := envBool(EnvCompression); ok {
		c.Compress = v
	}
	if compress != nil {
		c.Compress = *compress
	}

	return c
}

// CommandTimeout resolves the per-command timeout: caller seconds (if > 0),
// else SSH_COMMAND_TIMEOUT, else the compiled default.
func CommandTimeout(timeoutSecs float64) time.Duration {
	d := DefaultCommandTimeout
	if v, ok := envDuration(EnvCommandTimeout); ok {
		d = v
	}
	if timeoutSecs > 0 {
		d = time.Duration(timeoutSecs * float64(time.Second))
	}
	return d
}

// InactivityTimeout resolves the session idle timeout.
func InactivityTimeout() time.Duration {
	if v, ok := envDuration(EnvInactivityTimeout); ok {
		return v
	}
	return DefaultInactivityTimeout
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func envDurationMS(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	switch v {
	case "true", "TRUE", "1":
		return true, true
	case "":
		return false, false
	default:
		return false, true
	}
}

// Process holds the tunables consulted once at startup by cmd/ssh-mcp-server
// — the ambient-stack counterpart to Connect, mirrored on the teacher's
// *Config struct populated by getEnv helpers.
type Process struct {
	LogLevel string
	MCPPort  int
}

// LoadProcess reads the process-level settings from the environment, in
// the teacher's getEnv(key, default) idiom.
func LoadProcess() Process {
	return Process{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		MCPPort:  getEnvAsInt("MCP_PORT", 8765),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := envInt(key); ok {
		return v
	}
	return fallback
}
