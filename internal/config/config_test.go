package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATHER_CONFIG_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with no config file: %v", err)
	}

	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("server_url = %q", cfg.ServerURL)
	}
	if cfg.CachePath != filepath.Join(dir, "cache.db") {
		t.Errorf("cache_path = %q", cfg.CachePath)
	}
	if cfg.CredStore != "auto" {
		t.Errorf("cred_store = %q", cfg.CredStore)
	}
	if cfg.RequestTimeoutSeconds != 15 {
		t.Errorf("request_timeout_seconds = %d", cfg.RequestTimeoutSeconds)
	}
	if !cfg.NetworkEnabled || !cfg.CacheEnabled {
		t.Error("both sources should default to enabled")
	}
	if cfg.MonitorPort != 8808 {
		t.Errorf("monitor_port = %d", cfg.MonitorPort)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATHER_CONFIG_DIR", dir)

	yaml := `
server_url: https://gather.example.com
network_enabled: false
monitor_port: 9999
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://gather.example.com" {
		t.Errorf("server_url = %q", cfg.ServerURL)
	}
	if cfg.NetworkEnabled {
		t.Error("network_enabled should come from the file")
	}
	if cfg.MonitorPort != 9999 {
		t.Errorf("monitor_port = %d", cfg.MonitorPort)
	}
	// Unset keys keep their defaults.
	if !cfg.CacheEnabled {
		t.Error("cache_enabled should keep its default")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATHER_CONFIG_DIR", dir)

	yaml := "server_url: https://from-file.example.com\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("GATHER_SERVER_URL", "https://from-env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://from-env.example.com" {
		t.Errorf("server_url = %q, env should win over file", cfg.ServerURL)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GATHER_CONFIG_DIR", dir)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("::: not yaml"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Error("malformed config should fail loudly, not fall back to defaults")
	}
}
