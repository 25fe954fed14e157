// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any mapped setting
//
// Config is immutable after LoadWithKoanf() and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	NATS       NATSConfig       `koanf:"nats"`
	DeadLetter DeadLetterConfig `koanf:"deadletter"`
	Storage    StorageConfig    `koanf:"storage"`
	Workers    WorkersConfig    `koanf:"workers"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`

	// PublicURL is the externally reachable base URL. It prefixes the links
	// in API responses and the signed media URLs handed to analysis workers.
	PublicURL string `koanf:"public_url"`

	// MaxUploadBytes bounds the body of a recording upload.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	Environment string `koanf:"environment"` // "development", "staging", "production"
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path"`       // empty = in-memory
	MaxMemory string `koanf:"max_memory"` // DuckDB memory_limit, e.g. "1GB"
	Threads   int    `koanf:"threads"`    // 0 = use NumCPU
}

// NATSConfig holds broker settings for both job subjects.
type NATSConfig struct {
	// URL is the NATS server connection URL. Ignored when EmbeddedServer is
	// true; the embedded server's client URL is used instead.
	URL string `koanf:"url"`

	// EmbeddedServer runs a JetStream-enabled NATS server in process.
	EmbeddedServer bool `koanf:"embedded_server"`

	// EmbeddedPort is the client port of the embedded server; -1 picks a
	// random free port.
	EmbeddedPort int `koanf:"embedded_port"`

	// StoreDir is the JetStream storage directory of the embedded server.
	StoreDir  string `koanf:"store_dir"`
	MaxMemory int64  `koanf:"max_memory"`
	MaxStore  int64  `koanf:"max_store"`

	StreamName      string        `koanf:"stream_name"`
	StreamRetention time.Duration `koanf:"stream_retention"`
	RequestSubject  string        `koanf:"request_subject"`
	ResultSubject   string        `koanf:"result_subject"`
	PoisonSubject   string        `koanf:"poison_subject"`

	// DurableName is the durable consumer of the result ingestor.
	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`

	// AckWait is how long JetStream waits for an ack before redelivery.
	AckWait time.Duration `koanf:"ack_wait"`

	// MaxDeliver bounds redelivery of a result message that cannot be
	// applied. When reached, the ingestor dead-letters the message.
	MaxDeliver int `koanf:"max_deliver"`

	// ReceiveTimeout is the idle heartbeat of the ingestor loop.
	ReceiveTimeout time.Duration `koanf:"receive_timeout"`

	// PublishAckTimeout bounds the wait for a JetStream PubAck.
	PublishAckTimeout time.Duration `koanf:"publish_ack_timeout"`

	// Router settings for the analysis bridge.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// DeadLetterConfig holds the BadgerDB dead-letter store settings.
type DeadLetterConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	// Dir is the root directory of uploaded recordings.
	Dir string `koanf:"dir"`

	// URLTTL is the lifetime of a signed download URL.
	URLTTL time.Duration `koanf:"url_ttl"`
}

// WorkersConfig holds the analysis worker pool settings.
type WorkersConfig struct {
	// Enabled runs the analysis bridge and its worker pool in this process.
	// Disable it when an external analysis service consumes the request
	// subject.
	Enabled bool `koanf:"enabled"`

	// Size is the number of worker processes.
	Size int `koanf:"size"`

	// Command is the worker executable and its arguments. Empty means the
	// current binary is re-executed with the hidden _worker command.
	Command []string `koanf:"command"`

	// Analyzer is the program each worker runs per recording. "{path}" in
	// any argument is replaced with the local path of the downloaded
	// recording.
	Analyzer []string `koanf:"analyzer"`

	// ScratchDir holds recordings downloaded for analysis; empty uses the
	// system temp directory.
	ScratchDir   string        `koanf:"scratch_dir"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// MaxDownloadBytes caps a single downloaded recording or transcript.
	MaxDownloadBytes int64 `koanf:"max_download_bytes"`

	CommandTimeout time.Duration `koanf:"command_timeout"`
	ReplyGrace     time.Duration `koanf:"reply_grace"`
	StartTimeout   time.Duration `koanf:"start_timeout"`
}

// SecurityConfig holds URL signing and HTTP protection settings
type SecurityConfig struct {
	// SigningSecret is the HMAC key for signed media URLs. When empty outside
	// production an ephemeral secret is generated at load time.
	SigningSecret     string        `koanf:"signing_secret"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// ListenAddr returns the HTTP listen address.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
