package config

import (
	"testing"
	"time"
)

func TestResolveConnectDefaults(t *testing.T) {
	c := ResolveConnect(0, 0, 0, nil)
	if c.Timeout != DefaultConnectTimeout {
		t.Fatalf("timeout = %v, want %v", c.Timeout, DefaultConnectTimeout)
	}
	if c.MaxRetries != DefaultMaxRetries {
		t.Fatalf("max retries = %d, want %d", c.MaxRetries, DefaultMaxRetries)
	}
	if c.RetryDelay != DefaultRetryDelay {
		t.Fatalf("retry delay = %v, want %v", c.RetryDelay, DefaultRetryDelay)
	}
	if c.Compress != DefaultCompression {
		t.Fatalf("compress = %v, want %v", c.Compress, DefaultCompression)
	}
}

func TestResolveConnectEnvOverride(t *testing.T) {
	t.Setenv(EnvMaxRetries, "7")
	c := ResolveConnect(0, 0, 0, nil)
	if c.MaxRetries != 7 {
		t.Fatalf("max retries = %d, want 7", c.MaxRetries)
	}
}

func TestResolveConnectEnvUnparseableFallsBackToDefault(t *testing.T) {
	t.Setenv(EnvMaxRetries, "not-a-number")
	c := ResolveConnect(0, 0, 0, nil)
	if c.MaxRetries != DefaultMaxRetries {
		t.Fatalf("max retries = %d, want default %d", c.MaxRetries, DefaultMaxRetries)
	}
}

func TestResolveConnectCallerWinsOverEnv(t *testing.T) {
	t.Setenv(EnvMaxRetries, "7")
	c := ResolveConnect(0, 2, 0, nil)
	if c.MaxRetries != 2 {
		t.Fatalf("max retries = %d, want caller value 2", c.MaxRetries)
	}
}

func TestCommandTimeout(t *testing.T) {
	if d := CommandTimeout(0); d != DefaultCommandTimeout {
		t.Fatalf("got %v, want default", d)
	}
	if d := CommandTimeout(5); d != 5*time.Second {
		t.Fatalf("got %v, want 5s", d)
	}
}

func TestCompressionTruthyValues(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1"} {
		t.Setenv(EnvCompression, v)
		c := ResolveConnect(0, 0, 0, nil)
		if !c.Compress {
			t.Fatalf("compress should be true for env value %q", v)
		}
	}
	t.Setenv(EnvCompression, "0")
	c := ResolveConnect(0, 0, 0, nil)
	if c.Compress {
		t.Fatal("compress should be false for env value \"0\"")
	}
}
