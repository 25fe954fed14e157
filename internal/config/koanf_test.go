// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.NATS.RequestSubject != "analysis.requests" {
		t.Errorf("NATS.RequestSubject = %q, want analysis.requests", cfg.NATS.RequestSubject)
	}
	if cfg.NATS.ResultSubject != "analysis.results" {
		t.Errorf("NATS.ResultSubject = %q, want analysis.results", cfg.NATS.ResultSubject)
	}
	if cfg.NATS.StreamName != "ANALYSIS" {
		t.Errorf("NATS.StreamName = %q, want ANALYSIS", cfg.NATS.StreamName)
	}
	if cfg.NATS.ReceiveTimeout != 30*time.Second {
		t.Errorf("NATS.ReceiveTimeout = %v, want 30s", cfg.NATS.ReceiveTimeout)
	}
	if cfg.NATS.PublishAckTimeout != 5*time.Second {
		t.Errorf("NATS.PublishAckTimeout = %v, want 5s", cfg.NATS.PublishAckTimeout)
	}

	if cfg.Workers.CommandTimeout != 10*time.Minute {
		t.Errorf("Workers.CommandTimeout = %v, want 10m", cfg.Workers.CommandTimeout)
	}
	if cfg.Workers.ReplyGrace != 5*time.Second {
		t.Errorf("Workers.ReplyGrace = %v, want 5s", cfg.Workers.ReplyGrace)
	}
	if cfg.Workers.StartTimeout != 10*time.Second {
		t.Errorf("Workers.StartTimeout = %v, want 10s", cfg.Workers.StartTimeout)
	}

	if cfg.Storage.URLTTL != time.Hour {
		t.Errorf("Storage.URLTTL = %v, want 1h", cfg.Storage.URLTTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NATS_URL", "nats.url"},
		{"NATS_EMBEDDED", "nats.embedded_server"},
		{"NATS_MAX_DELIVER", "nats.max_deliver"},
		{"DUCKDB_PATH", "database.path"},
		{"WORKER_POOL_SIZE", "workers.size"},
		{"WORKER_COMMAND_TIMEOUT", "workers.command_timeout"},
		{"WORKER_MAX_DOWNLOAD_BYTES", "workers.max_download_bytes"},
		{"SIGNING_SECRET", "security.signing_secret"},
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 8460 {
		t.Errorf("Server.Port = %d, want 8460", cfg.Server.Port)
	}
	if len(cfg.Security.SigningSecret) != 64 {
		t.Errorf("expected a generated 64-char signing secret, got %d chars", len(cfg.Security.SigningSecret))
	}
	if len(cfg.Workers.Analyzer) != 2 || cfg.Workers.Analyzer[1] != "{path}" {
		t.Errorf("Workers.Analyzer = %v", cfg.Workers.Analyzer)
	}
}

func TestLoadWithKoanf_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
  public_url: "https://audio.example.org/"
workers:
  size: 3
nats:
  max_deliver: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("WORKER_POOL_SIZE", "6")
	t.Setenv("WORKER_ANALYZER", "whisper-cli, --json, {path}")
	t.Setenv("SIGNING_SECRET", testSecret)
	t.Setenv("NATS_RECEIVE_TIMEOUT", "45s")
	t.Setenv("WORKER_MAX_DOWNLOAD_BYTES", "1048576")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000 from file", cfg.Server.Port)
	}
	if cfg.Server.PublicURL != "https://audio.example.org" {
		t.Errorf("Server.PublicURL = %q, want trailing slash trimmed", cfg.Server.PublicURL)
	}
	if cfg.NATS.MaxDeliver != 7 {
		t.Errorf("NATS.MaxDeliver = %d, want 7 from file", cfg.NATS.MaxDeliver)
	}
	if cfg.Workers.Size != 6 {
		t.Errorf("Workers.Size = %d, want 6 from env", cfg.Workers.Size)
	}
	if cfg.Workers.MaxDownloadBytes != 1<<20 {
		t.Errorf("Workers.MaxDownloadBytes = %d, want 1048576 from env", cfg.Workers.MaxDownloadBytes)
	}
	if cfg.NATS.ReceiveTimeout != 45*time.Second {
		t.Errorf("NATS.ReceiveTimeout = %v, want 45s", cfg.NATS.ReceiveTimeout)
	}
	want := []string{"whisper-cli", "--json", "{path}"}
	if len(cfg.Workers.Analyzer) != len(want) {
		t.Fatalf("Workers.Analyzer = %v, want %v", cfg.Workers.Analyzer, want)
	}
	for i := range want {
		if cfg.Workers.Analyzer[i] != want[i] {
			t.Errorf("Workers.Analyzer[%d] = %q, want %q", i, cfg.Workers.Analyzer[i], want[i])
		}
	}
	if cfg.Security.SigningSecret != testSecret {
		t.Errorf("SigningSecret was not taken from env")
	}
}

func TestLoadWithKoanf_ProductionRequiresSecret(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ENVIRONMENT", "production")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected error without SIGNING_SECRET in production")
	}
}
