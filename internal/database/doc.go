// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package database is the DuckDB storage layer for recordings and their
// analysis results.
//
// # Tables
//
//   - recordings: one row per upload, including the current analysis progress
//   - recording_metrics: recording-level metrics, at most one row per recording
//   - channels: one row per analysed channel, unique per (recording, idx)
//   - segments: timed transcript segments of a channel
//
// Identifiers are stored as UUID strings. Metric collections are stored as
// JSON text and decoded through models.Metric, so the absence of a value
// survives storage.
//
// # Result Application
//
// ApplyRecordingMetrics, InsertChannel, ApplyProgress and ApplyError each
// apply one analysis response in a single transaction. They return
// ErrNotFound for an unknown recording and never write in that case. Progress
// never decreases, and done and error are terminal.
//
// # Concurrency
//
// *DB is safe for concurrent use. The result ingestor is the only writer of
// analysis state, so status transitions never race with each other.
//
// # Testing
//
// Tests use an in-memory database (InMemoryPath). A package-level semaphore
// serializes them to keep CGO pressure bounded.
package database
