// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateDeadLetter(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateWorkers(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if err := validateHTTPURL(c.Server.PublicURL, "PUBLIC_URL"); err != nil {
		return err
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// validateNATS validates broker settings. The URL is only checked when an
// external server is used.
func (c *Config) validateNATS() error {
	n := c.NATS
	if !n.EmbeddedServer {
		if err := validateNATSURL(n.URL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
	} else if n.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}

	if n.StreamName == "" {
		return fmt.Errorf("NATS_STREAM_NAME is required")
	}
	if n.RequestSubject == "" || n.ResultSubject == "" {
		return fmt.Errorf("NATS_REQUEST_SUBJECT and NATS_RESULT_SUBJECT are required")
	}
	if n.RequestSubject == n.ResultSubject {
		return fmt.Errorf("NATS_REQUEST_SUBJECT and NATS_RESULT_SUBJECT must differ")
	}
	if n.DurableName == "" {
		return fmt.Errorf("NATS_DURABLE_NAME is required")
	}
	if n.MaxDeliver < 1 {
		return fmt.Errorf("NATS_MAX_DELIVER must be at least 1")
	}
	if n.AckWait <= 0 || n.ReceiveTimeout <= 0 || n.PublishAckTimeout <= 0 {
		return fmt.Errorf("NATS_ACK_WAIT, NATS_RECEIVE_TIMEOUT and NATS_PUBLISH_ACK_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDeadLetter() error {
	if !c.DeadLetter.InMemory && c.DeadLetter.Path == "" {
		return fmt.Errorf("DEADLETTER_PATH is required unless DEADLETTER_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	if c.Storage.URLTTL <= 0 {
		return fmt.Errorf("STORAGE_URL_TTL must be positive")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	w := c.Workers
	if !w.Enabled {
		return nil
	}
	if w.Size < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least 1")
	}
	if len(w.Analyzer) == 0 {
		return fmt.Errorf("WORKER_ANALYZER is required when WORKERS_ENABLED=true")
	}
	if w.CommandTimeout <= 0 || w.StartTimeout <= 0 {
		return fmt.Errorf("WORKER_COMMAND_TIMEOUT and WORKER_START_TIMEOUT must be positive")
	}
	if w.ReplyGrace < 0 {
		return fmt.Errorf("WORKER_REPLY_GRACE must not be negative")
	}
	if w.FetchTimeout <= 0 {
		return fmt.Errorf("WORKER_FETCH_TIMEOUT must be positive")
	}
	if w.MaxDownloadBytes <= 0 {
		return fmt.Errorf("WORKER_MAX_DOWNLOAD_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if err := c.validateSigningSecret(); err != nil {
		return err
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

// validateSigningSecret validates the media URL signing secret
func (c *Config) validateSigningSecret() error {
	if c.Security.SigningSecret == "" {
		return fmt.Errorf("SIGNING_SECRET is required in production")
	}
	if len(c.Security.SigningSecret) < 32 {
		return fmt.Errorf("SIGNING_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.SigningSecret) {
		return fmt.Errorf("SIGNING_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL validates that a URL is a base http or https URL.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}

// validateNATSURL validates that the NATS URL is properly formatted
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}

// placeholderPatterns are values that indicate a secret was never set.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
