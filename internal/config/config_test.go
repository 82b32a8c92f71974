package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.QuoteExpiry != 30*time.Second {
		t.Fatalf("expiry = %v, want 30s", settings.QuoteExpiry)
	}
	if settings.Debounce != 300*time.Millisecond {
		t.Fatalf("debounce = %v, want 300ms", settings.Debounce)
	}
	if settings.Slippage != 0.5 {
		t.Fatalf("slippage = %v, want 0.5", settings.Slippage)
	}
	if settings.Retries != 1 {
		t.Fatalf("retries = %d, want 1", settings.Retries)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
timeout: 5s
quotes:
  expiry: 45s
  fee_rate: 0.003
  enable_venues: [oneinch, zerox]
rpc:
  "1": https://rpc.example/eth
`)
	settings, err := Load(GlobalFlags{ConfigPath: path, Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v", settings.Timeout)
	}
	if settings.QuoteExpiry != 45*time.Second {
		t.Fatalf("expiry = %v", settings.QuoteExpiry)
	}
	if settings.FeeRate != 0.003 {
		t.Fatalf("fee rate = %v", settings.FeeRate)
	}
	if len(settings.EnableVenues) != 2 || settings.EnableVenues[0] != "oneinch" {
		t.Fatalf("venues = %v", settings.EnableVenues)
	}
	if settings.RPCEndpoints[1] != "https://rpc.example/eth" {
		t.Fatalf("rpc = %v", settings.RPCEndpoints)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "timeout: 5s\n")
	t.Setenv("SWAP_TIMEOUT", "7s")
	t.Setenv("SWAP_QUOTE_EXPIRY", "20s")
	settings, err := Load(GlobalFlags{ConfigPath: path, Retries: -1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Timeout != 7*time.Second {
		t.Fatalf("timeout = %v, want env override", settings.Timeout)
	}
	if settings.QuoteExpiry != 20*time.Second {
		t.Fatalf("expiry = %v, want env override", settings.QuoteExpiry)
	}
}

func TestFlagOverridesEnv(t *testing.T) {
	t.Setenv("SWAP_TIMEOUT", "7s")
	settings, err := Load(GlobalFlags{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		Timeout:    "3s",
		Retries:    4,
		Slippage:   "1.5",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v, want flag override", settings.Timeout)
	}
	if settings.Retries != 4 {
		t.Fatalf("retries = %d", settings.Retries)
	}
	if settings.Slippage != 1.5 {
		t.Fatalf("slippage = %v", settings.Slippage)
	}
}

func TestSlippageBounds(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Slippage: "75", Retries: -1})
	if err == nil {
		t.Fatal("expected slippage bound error")
	}
}

func TestConflictingOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), JSON: true, Plain: true, Retries: -1})
	if err == nil {
		t.Fatal("expected conflict error")
	}
}
