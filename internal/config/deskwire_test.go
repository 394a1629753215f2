package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deskwire.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[broker]
key = "app-key"

[api]
origin = "https://desk.example.com"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Broker.Host != DefaultBrokerHost {
		t.Fatalf("unexpected host: %s", cfg.Broker.Host)
	}
	if cfg.Broker.Port != DefaultBrokerPort {
		t.Fatalf("unexpected port: %d", cfg.Broker.Port)
	}
	if cfg.Broker.Scheme != DefaultBrokerScheme {
		t.Fatalf("unexpected scheme: %s", cfg.Broker.Scheme)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Fatalf("unexpected log level: %s", cfg.Log.Level)
	}
}

func TestLoadRejectsMissingBrokerKey(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[api]
origin = "https://desk.example.com"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing broker key")
	}
}

func TestLoadRejectsBadScheme(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[broker]
key = "k"
scheme = "http"

[api]
origin = "https://desk.example.com"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for non-websocket scheme")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
