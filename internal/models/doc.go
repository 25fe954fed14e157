// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package models defines the data shared by the broker protocol, the store
// and the HTTP API.
//
// # Wire protocol
//
// Every message is an Envelope{id, data}. Requests carry a RequestPayload.
// Responses carry a Response, a tagged union whose "_kind" field selects one
// of RecordingMetrics, ChannelMetrics, ProgressMsg or ErrorMsg:
//
//	{"id":"6f1c...","data":{"_kind":"ProgressMsg","percent_done":40}}
//
// Metrics are an open-ended, self-describing value type tagged by "type"
// (int, float, str, bool). The value may be absent, which is not the same as
// a zero value.
//
// # Stored state
//
// Recording, RecordingProgress, Channel and StoredSegment mirror the DuckDB
// tables written by the result ingestor; the *View types are API shapes.
package models
