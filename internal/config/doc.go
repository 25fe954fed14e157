// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package config provides centralized configuration management for Sonograph.

Configuration is loaded with Koanf v2 from three layers, each overriding the
previous one:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/sonograph/config.yaml
 3. Environment variables listed in envMappings

Unmapped environment variables are ignored. Comma-separated values are split
for slice settings such as CORS_ORIGINS and WORKER_ANALYZER.

# Example

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    return err
	}
	db, err := database.New(&cfg.Database)

# Key Environment Variables

	HTTP_PORT, PUBLIC_URL        HTTP listener and link base
	DUCKDB_PATH                  result store
	NATS_URL, NATS_EMBEDDED      broker
	NATS_MAX_DELIVER             redelivery bound before dead-lettering
	WORKER_POOL_SIZE             number of analysis worker processes
	WORKER_ANALYZER              analyzer command, "{path}" is the recording URL
	SIGNING_SECRET               HMAC key for media URLs (required in production)
	LOG_LEVEL, LOG_FORMAT        logging
*/
package config
