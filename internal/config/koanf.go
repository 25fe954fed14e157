// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sonograph/config.yaml",
	"/etc/sonograph/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8460,
			Host:           "0.0.0.0",
			Timeout:        30 * time.Second,
			PublicURL:      "http://127.0.0.1:8460",
			MaxUploadBytes: 2 << 30, // 2GB
			Environment:    "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/sonograph.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		NATS: NATSConfig{
			URL:                        "nats://127.0.0.1:4222",
			EmbeddedServer:             true,
			EmbeddedPort:               4222,
			StoreDir:                   "/data/nats/jetstream",
			MaxMemory:                  256 << 20, // 256MB
			MaxStore:                   4 << 30,   // 4GB
			StreamName:                 "ANALYSIS",
			StreamRetention:            7 * 24 * time.Hour,
			RequestSubject:             "analysis.requests",
			ResultSubject:              "analysis.results",
			PoisonSubject:              "analysis.poison",
			DurableName:                "result-ingestor",
			QueueGroup:                 "ingestors",
			AckWait:                    30 * time.Second,
			MaxDeliver:                 5,
			ReceiveTimeout:             30 * time.Second,
			PublishAckTimeout:          5 * time.Second,
			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterCloseTimeout:         30 * time.Second,
		},
		DeadLetter: DeadLetterConfig{
			Path:     "/data/deadletter",
			InMemory: false,
		},
		Storage: StorageConfig{
			Dir:    "/data/recordings",
			URLTTL: time.Hour,
		},
		Workers: WorkersConfig{
			Enabled:          true,
			Size:             2,
			Command:          []string{},
			Analyzer:         []string{"whisper-json", "{path}"},
			ScratchDir:       "",
			FetchTimeout:     5 * time.Minute,
			MaxDownloadBytes: 2 << 30,
			CommandTimeout:   10 * time.Minute,
			ReplyGrace:       5 * time.Second,
			StartTimeout:     10 * time.Second,
		},
		Security: SecurityConfig{
			SigningSecret:     "",
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.applyDerivedDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyDerivedDefaults fills settings whose default depends on other settings.
func (c *Config) applyDerivedDefaults() error {
	if c.Security.SigningSecret == "" && !c.IsProduction() {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate signing secret: %w", err)
		}
		c.Security.SigningSecret = hex.EncodeToString(buf)
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	return nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
	"workers.command",
	"workers.analyzer",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server mappings
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"public_url":       "server.public_url",
	"max_upload_bytes": "server.max_upload_bytes",
	"environment":      "server.environment",

	// Database mappings
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// NATS mappings
	"nats_url":                 "nats.url",
	"nats_embedded":            "nats.embedded_server",
	"nats_embedded_port":       "nats.embedded_port",
	"nats_store_dir":           "nats.store_dir",
	"nats_max_memory":          "nats.max_memory",
	"nats_max_store":           "nats.max_store",
	"nats_stream_name":         "nats.stream_name",
	"nats_stream_retention":    "nats.stream_retention",
	"nats_request_subject":     "nats.request_subject",
	"nats_result_subject":      "nats.result_subject",
	"nats_poison_subject":      "nats.poison_subject",
	"nats_durable_name":        "nats.durable_name",
	"nats_queue_group":         "nats.queue_group",
	"nats_ack_wait":            "nats.ack_wait",
	"nats_max_deliver":         "nats.max_deliver",
	"nats_receive_timeout":     "nats.receive_timeout",
	"nats_publish_ack_timeout": "nats.publish_ack_timeout",
	// Router configuration environment mappings
	"nats_router_retry_count":    "nats.router_retry_count",
	"nats_router_retry_interval": "nats.router_retry_initial_interval",
	"nats_router_close_timeout":  "nats.router_close_timeout",

	// Dead-letter store mappings
	"deadletter_path":      "deadletter.path",
	"deadletter_in_memory": "deadletter.in_memory",

	// Storage mappings
	"storage_dir":     "storage.dir",
	"storage_url_ttl": "storage.url_ttl",

	// Worker pool mappings
	"workers_enabled":           "workers.enabled",
	"worker_pool_size":          "workers.size",
	"worker_command":            "workers.command",
	"worker_analyzer":           "workers.analyzer",
	"worker_command_timeout":    "workers.command_timeout",
	"worker_reply_grace":        "workers.reply_grace",
	"worker_start_timeout":      "workers.start_timeout",
	"worker_scratch_dir":        "workers.scratch_dir",
	"worker_fetch_timeout":      "workers.fetch_timeout",
	"worker_max_download_bytes": "workers.max_download_bytes",

	// Security mappings
	"signing_secret":      "security.signing_secret",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - NATS_URL -> nats.url
//   - DUCKDB_PATH -> database.path
//   - WORKER_POOL_SIZE -> workers.size
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
