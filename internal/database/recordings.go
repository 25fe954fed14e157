// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/models"
)

// CreateRecording inserts a recording in the pending state.
func (db *DB) CreateRecording(ctx context.Context, rec *models.Recording) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	rec.Progress = models.RecordingProgress{
		Status:     models.StatusPending,
		LastUpdate: rec.UploadedAt,
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO recordings (
			id, original_filename, source_key, transcript_key, force_diarize,
			uploaded_at, status, percent, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.ID.String(), rec.OriginalFilename, rec.SourceKey,
		nullableString(rec.TranscriptKey), nullableBool(rec.ForceDiarize),
		rec.UploadedAt, string(models.StatusPending), rec.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording %s: %w", rec.ID, err)
	}
	return nil
}

const recordingColumns = `id, original_filename, source_key, transcript_key, force_diarize,
	uploaded_at, status, percent, progress_channel, description, error_message, last_update`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecording(row rowScanner) (*models.Recording, error) {
	var (
		rec           models.Recording
		id            string
		status        string
		transcriptKey sql.NullString
		forceDiarize  sql.NullBool
		channel       sql.NullInt64
		description   sql.NullString
		errorMessage  sql.NullString
	)

	err := row.Scan(
		&id, &rec.OriginalFilename, &rec.SourceKey, &transcriptKey, &forceDiarize,
		&rec.UploadedAt, &status, &rec.Progress.Percent, &channel, &description,
		&errorMessage, &rec.Progress.LastUpdate,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("stored recording id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.TranscriptKey = stringPtr(transcriptKey)
	rec.ForceDiarize = boolPtr(forceDiarize)
	rec.Progress.Status = models.AnalysisStatus(status)
	rec.Progress.Channel = intPtr(channel)
	rec.Progress.Description = stringPtr(description)
	rec.Progress.Error = stringPtr(errorMessage)
	return &rec, nil
}

// GetRecording returns a recording with its progress, or ErrNotFound.
func (db *DB) GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id.String())

	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return rec, nil
}

// GetProgress returns only the progress of a recording.
func (db *DB) GetProgress(ctx context.Context, id uuid.UUID) (*models.RecordingProgress, error) {
	rec, err := db.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec.Progress, nil
}

// ListRecordings returns all recordings, newest first.
func (db *DB) ListRecordings(ctx context.Context) ([]models.Recording, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// RecordingExists reports whether a recording with id is stored.
func (db *DB) RecordingExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings WHERE id = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check recording %s: %w", id, err)
	}
	return n > 0, nil
}

// GetRecordingMetrics returns the recording-level metrics, or nil when none
// have been ingested yet.
func (db *DB) GetRecordingMetrics(ctx context.Context, id uuid.UUID) ([]models.MetricCollection, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT metrics_json FROM recording_metrics WHERE recording_id = ?`, id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics of recording %s: %w", id, err)
	}
	return decodeMetrics(raw)
}

// DeleteRecording removes a recording with its metrics, channels and segments
// in one transaction.
func (db *DB) DeleteRecording(ctx context.Context, id uuid.UUID) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, _, err := loadProgress(ctx, tx, id); err != nil {
			return err
		}
		return deleteResults(ctx, tx, id, true)
	})
}

// ResetProgress discards previous analysis results and puts the recording
// back into the pending state so it can be resubmitted.
func (db *DB) ResetProgress(ctx context.Context, id uuid.UUID) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, _, err := loadProgress(ctx, tx, id); err != nil {
			return err
		}
		if err := deleteResults(ctx, tx, id, false); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE recordings
			SET status = ?, percent = 0, progress_channel = NULL, description = NULL,
				error_message = NULL, last_update = ?
			WHERE id = ?`,
			string(models.StatusPending), time.Now().UTC(), id.String())
		if err != nil {
			return fmt.Errorf("failed to reset progress of %s: %w", id, err)
		}
		return nil
	})
}

func deleteResults(ctx context.Context, tx *sql.Tx, id uuid.UUID, withRecording bool) error {
	queries := []string{
		`DELETE FROM segments WHERE channel_id IN (SELECT id FROM channels WHERE recording_id = ?)`,
		`DELETE FROM channels WHERE recording_id = ?`,
		`DELETE FROM recording_metrics WHERE recording_id = ?`,
	}
	if withRecording {
		queries = append(queries, `DELETE FROM recordings WHERE id = ?`)
	}

	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q, id.String()); err != nil {
			return fmt.Errorf("failed to delete results of %s: %w", id, err)
		}
	}
	return nil
}

func encodeMetrics(metrics []models.MetricCollection) (string, error) {
	if metrics == nil {
		metrics = []models.MetricCollection{}
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}
	return string(b), nil
}

func decodeMetrics(raw string) ([]models.MetricCollection, error) {
	var metrics []models.MetricCollection
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode stored metrics: %w", err)
	}
	return metrics, nil
}
