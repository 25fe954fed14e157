// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
database_schema.go - Database Schema Management

Tables:
  - recordings: one row per uploaded recording, including its analysis progress
  - recording_metrics: recording-level metric collections, upserted by recording id
  - channels: analysed audio channels of a recording
  - segments: time spans of a channel with their text and metrics

There are no foreign keys. DuckDB cannot update a row referenced by a foreign
key and has no ON DELETE CASCADE, so deletes cascade in DeleteRecording inside
one transaction. Metric collections are stored as JSON text.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS recordings (
		id VARCHAR PRIMARY KEY,
		original_filename VARCHAR NOT NULL,
		source_key VARCHAR NOT NULL,
		transcript_key VARCHAR,
		force_diarize BOOLEAN,
		uploaded_at TIMESTAMP NOT NULL,
		status VARCHAR NOT NULL DEFAULT 'pending',
		percent INTEGER NOT NULL DEFAULT 0 CHECK (percent >= 0 AND percent <= 100),
		progress_channel INTEGER,
		description VARCHAR,
		error_message VARCHAR,
		last_update TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS recording_metrics (
		recording_id VARCHAR PRIMARY KEY,
		metrics_json VARCHAR NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id VARCHAR PRIMARY KEY,
		recording_id VARCHAR NOT NULL,
		idx INTEGER NOT NULL,
		assigned_name VARCHAR,
		metrics_json VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS segments (
		id VARCHAR PRIMARY KEY,
		channel_id VARCHAR NOT NULL,
		start_sec DOUBLE NOT NULL,
		end_sec DOUBLE NOT NULL,
		content VARCHAR NOT NULL,
		metrics_json VARCHAR NOT NULL,
		CHECK (end_sec >= start_sec)
	)`,
}

var indexCreationQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_channels_recording ON channels(recording_id)`,
	`CREATE INDEX IF NOT EXISTS idx_segments_channel_start ON segments(channel_id, start_sec)`,
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// createIndexes creates the lookup indexes used by the read API.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range indexCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
