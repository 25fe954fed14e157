// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package main is the sonograph command.

Sonograph accepts audio recordings over HTTP, sends each one to a pool of
analysis worker processes through NATS JetStream and stores the results in
DuckDB. Clients read recordings, channels and transcript segments back
through the same API and can follow analysis progress over a WebSocket.

# Commands

	sonograph serve                 # API, result ingestor and analysis workers
	sonograph deadletter list       # inspect results that could not be applied
	sonograph deadletter delete ID
	sonograph deadletter purge --yes
	sonograph version

The worker pool re-executes the binary with the hidden _worker command; it
speaks the line protocol of internal/workerpool on stdin and stdout and is
not meant to be started by hand.

# Application Architecture

serve runs every long-lived component under a Suture v4 tree:

	RootSupervisor ("sonograph")
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── result-ingestor (single sequential consumer)
	│   └── analysis-bridge (worker pool, request router)
	├── MessagingSupervisor ("messaging-layer")
	│   └── progress-hub (WebSocket progress fan-out)
	└── APISupervisor ("api-layer")
	    └── http-server (chi router)

The analysis bridge is rebuilt from scratch on every restart because a
worker pool cannot be started twice. Set WORKERS_ENABLED=false when an
external analysis service consumes the request subject instead.

# Configuration

Configuration is loaded via Koanf v2 (environment > config file > defaults).
The config file is found through --config, CONFIG_PATH or the default
search paths.

	HTTP_PORT=8460
	PUBLIC_URL=https://sonograph.example.com   # base of signed media URLs
	DUCKDB_PATH=/data/sonograph.duckdb
	STORAGE_DIR=/data/recordings
	NATS_EMBEDDED=true                         # or NATS_URL=nats://...
	WORKER_POOL_SIZE=2
	WORKER_ANALYZER=whisper-json,{path}
	SIGNING_SECRET=<random, required in production>
	LOG_LEVEL=info LOG_FORMAT=json

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains, the analysis
router stops taking requests and in-flight ones are nacked for redelivery,
workers get SIGTERM and are killed if they do not exit, and the ingestor
finishes the message it holds before the broker and the stores close.
*/
package main
