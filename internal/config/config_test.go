// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "./test.db"

plugins:
  dir: "./plugins"

servers:
  connect_timeout: "5s"
  call_timeout: "30s"

policy:
  restricted_egress: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("expected database path './test.db', got %q", cfg.Database.Path)
	}
	if cfg.Plugins.Dir != "./plugins" {
		t.Errorf("expected plugins dir './plugins', got %q", cfg.Plugins.Dir)
	}
	if cfg.Servers.ConnectTimeout != 5*time.Second {
		t.Errorf("expected connect timeout 5s, got %v", cfg.Servers.ConnectTimeout)
	}
	if cfg.Servers.CallTimeout != 30*time.Second {
		t.Errorf("expected call timeout 30s, got %v", cfg.Servers.CallTimeout)
	}
	if !cfg.Policy.RestrictedEgress {
		t.Error("expected restricted_egress to be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level 'debug', got %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TOOLMESH_TEST_DB", "/tmp/expanded.db")

	path := writeConfig(t, `
database:
  path: "${TOOLMESH_TEST_DB}"
plugins:
  dir: "./plugins"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Path != "/tmp/expanded.db" {
		t.Errorf("expected expanded path, got %q", cfg.Database.Path)
	}
}

func TestLoad_DefaultTimeouts(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "./test.db"
plugins:
  dir: "./plugins"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Servers.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("expected default connect timeout, got %v", cfg.Servers.ConnectTimeout)
	}
	if cfg.Servers.CallTimeout != DefaultCallTimeout {
		t.Errorf("expected default call timeout, got %v", cfg.Servers.CallTimeout)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
plugins:
  dir: "./plugins"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("expected database.path error, got: %v", err)
	}
}

func TestLoad_MissingPluginsDir(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "./test.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "plugins.dir") {
		t.Errorf("expected plugins.dir error, got: %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "./test.db"
plugins:
  dir: "./plugins"
servers:
  connect_timeout: "not-a-duration"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
