// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package metrics holds the Prometheus instrumentation of Sonograph.
//
// Metrics are registered with promauto on the default registry and served by
// the API at /metrics. Components call the Record* helpers rather than the
// vectors directly so label values stay consistent.
//
// Families:
//
//	sonograph_ingest_messages_total{kind,outcome}
//	sonograph_ingest_apply_duration_seconds{kind}
//	sonograph_submit_total{outcome}
//	sonograph_publish_total{topic,outcome}
//	sonograph_deadletter_total{reason}
//	sonograph_workerpool_live_workers
//	sonograph_workerpool_commands_total{outcome}
//	sonograph_workerpool_command_duration_seconds
//	sonograph_workerpool_terminations_total{method}
//	sonograph_api_requests_total{method,route,status}
package metrics
