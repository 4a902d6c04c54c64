package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error when config file missing")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: prod
exchange:
  baseUrl: https://api.example.com
database:
  dsn: postgresql://db:5432/bridge
`)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Exchange.Timeout != 10*time.Second {
		t.Fatalf("exchange timeout default = %v", cfg.Exchange.Timeout)
	}
	if cfg.Exchange.MaxAttempts != 4 {
		t.Fatalf("exchange maxAttempts default = %d", cfg.Exchange.MaxAttempts)
	}
	if cfg.Quote.RefreshCooldown != 120*time.Second {
		t.Fatalf("quote refreshCooldown default = %v", cfg.Quote.RefreshCooldown)
	}
	if cfg.Poll.TerminalDebounce != 400*time.Millisecond {
		t.Fatalf("poll terminalDebounce default = %v", cfg.Poll.TerminalDebounce)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("logLevel default = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: sandbox
exchange:
  baseUrl: https://api.example.com
`)
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatalf("expected environment validation error")
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
environment: dev
`)
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatalf("expected baseUrl validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_ENV", "staging")
	t.Setenv("BRIDGE_EXCHANGE_URL", "https://alt.example.com")
	t.Setenv("BRIDGE_EXCHANGE_API_KEY", "k-123")
	t.Setenv("BRIDGE_DB_DSN", "postgresql://override:5432/bridge")
	t.Setenv("BRIDGE_LOG_LEVEL", "debug")

	path := writeConfig(t, `
environment: dev
exchange:
  baseUrl: https://api.example.com
`)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("environment = %q", cfg.Environment)
	}
	if cfg.Exchange.BaseURL != "https://alt.example.com" {
		t.Fatalf("baseUrl = %q", cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.APIKey != "k-123" {
		t.Fatalf("apiKey = %q", cfg.Exchange.APIKey)
	}
	if cfg.Database.DSN != "postgresql://override:5432/bridge" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("logLevel = %q", cfg.LogLevel)
	}
}

func TestFromEnvRequiresBaseURL(t *testing.T) {
	t.Setenv("BRIDGE_EXCHANGE_URL", "")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error without exchange URL")
	}
	t.Setenv("BRIDGE_EXCHANGE_URL", "https://api.example.com")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Exchange.BaseURL != "https://api.example.com" {
		t.Fatalf("baseUrl = %q", cfg.Exchange.BaseURL)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
