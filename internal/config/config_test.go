package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Checkout.StaleTTL.Duration != 20*time.Second {
		t.Fatalf("unexpected stale ttl: %s", cfg.Checkout.StaleTTL.Duration)
	}
	if cfg.Checkout.MaxStaleRetries != 3 {
		t.Fatalf("unexpected max stale retries: %d", cfg.Checkout.MaxStaleRetries)
	}
	if cfg.Checkout.RefreshInterval.Duration != 2*time.Second {
		t.Fatalf("unexpected refresh interval: %s", cfg.Checkout.RefreshInterval.Duration)
	}
	if cfg.Probe.Timeout.Duration != 5*time.Second {
		t.Fatalf("unexpected probe timeout: %s", cfg.Probe.Timeout.Duration)
	}
	if cfg.Balance.TableName != "workspace_balances" {
		t.Fatalf("unexpected balance table: %s", cfg.Balance.TableName)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":9090"
checkout:
  stale_ttl: 30s
  max_stale_retries: 5
rate_limit:
  enabled: true
  limit: 10
  window: 30s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Checkout.StaleTTL.Duration != 30*time.Second {
		t.Fatalf("unexpected stale ttl: %s", cfg.Checkout.StaleTTL.Duration)
	}
	if cfg.Checkout.MaxStaleRetries != 5 {
		t.Fatalf("unexpected retries: %d", cfg.Checkout.MaxStaleRetries)
	}
	if cfg.RateLimit.Limit != 10 {
		t.Fatalf("unexpected rate limit: %d", cfg.RateLimit.Limit)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOKENPAY_SERVER_ADDRESS", ":7000")
	t.Setenv("TOKENPAY_CHECKOUT_STALE_TTL", "45s")
	t.Setenv("TOKENPAY_RATE_LIMIT_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Address != ":7000" {
		t.Fatalf("env override not applied: %s", cfg.Server.Address)
	}
	if cfg.Checkout.StaleTTL.Duration != 45*time.Second {
		t.Fatalf("env override not applied: %s", cfg.Checkout.StaleTTL.Duration)
	}
	if cfg.RateLimit.Enabled {
		t.Fatal("env override not applied: rate limit still enabled")
	}
}

func TestValidateRejectsMissingBackendURL(t *testing.T) {
	t.Setenv("TOKENPAY_BALANCE_BACKEND", "postgres")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for postgres backend without url")
	}
}
