// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
ingest.go - Result Application

Each Apply/Insert function runs one transaction for one response message and
returns whether the message changed stored state. A message for a recording
that does not exist returns ErrNotFound and writes nothing.

Status transitions are pending -> running -> done|error. Done and error are
terminal: once reached, progress and error messages no longer change the
status. Metric data is still accepted after a terminal state.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/models"
)

// loadProgress reads the status and percent of a recording inside tx.
func loadProgress(ctx context.Context, tx *sql.Tx, id uuid.UUID) (models.AnalysisStatus, int, error) {
	var (
		status  string
		percent int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, percent FROM recordings WHERE id = ?`, id.String()).Scan(&status, &percent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read progress of %s: %w", id, err)
	}
	return models.AnalysisStatus(status), percent, nil
}

func touch(ctx context.Context, tx *sql.Tx, id uuid.UUID, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE recordings SET last_update = ? WHERE id = ?`, now, id.String()); err != nil {
		return fmt.Errorf("failed to touch recording %s: %w", id, err)
	}
	return nil
}

// ApplyRecordingMetrics upserts the recording-level metrics and marks the
// recording done unless it is already terminal. Applying the same message
// twice leaves the same state.
func (db *DB) ApplyRecordingMetrics(ctx context.Context, id uuid.UUID, msg models.RecordingMetrics) (bool, error) {
	metricsJSON, err := encodeMetrics(msg.Metrics)
	if err != nil {
		return false, err
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		status, _, err := loadProgress(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recording_metrics (recording_id, metrics_json, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (recording_id) DO UPDATE
			SET metrics_json = EXCLUDED.metrics_json, updated_at = EXCLUDED.updated_at`,
			id.String(), metricsJSON, now)
		if err != nil {
			return fmt.Errorf("failed to upsert metrics of %s: %w", id, err)
		}

		if status.Terminal() {
			return touch(ctx, tx, id, now)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE recordings SET status = ?, percent = 100, last_update = ? WHERE id = ?`,
			string(models.StatusDone), now, id.String())
		if err != nil {
			return fmt.Errorf("failed to mark %s done: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertChannel stores a channel and all of its segments atomically. If any
// insert fails nothing is stored. A channel whose (recording, idx) already
// exists is not inserted again and inserted is false.
func (db *DB) InsertChannel(ctx context.Context, recordingID uuid.UUID, msg models.ChannelMetrics) (channelID uuid.UUID, inserted bool, err error) {
	channelMetrics, err := encodeMetrics(msg.Metrics)
	if err != nil {
		return uuid.Nil, false, err
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		status, _, err := loadProgress(ctx, tx, recordingID)
		if err != nil {
			return err
		}

		var existing string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM channels WHERE recording_id = ? AND idx = ?`,
			recordingID.String(), msg.Idx).Scan(&existing)
		switch {
		case err == nil:
			channelID, err = uuid.Parse(existing)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up channel %d of %s: %w", msg.Idx, recordingID, err)
		}

		now := time.Now().UTC()
		channelID = uuid.New()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO channels (id, recording_id, idx, assigned_name, metrics_json, created_at)
			VALUES (?, ?, ?, NULL, ?, ?)`,
			channelID.String(), recordingID.String(), msg.Idx, channelMetrics, now)
		if err != nil {
			return fmt.Errorf("failed to insert channel %d of %s: %w", msg.Idx, recordingID, err)
		}

		if err := insertSegments(ctx, tx, channelID, msg.Segments); err != nil {
			return err
		}

		if status.Terminal() {
			if err := touch(ctx, tx, recordingID, now); err != nil {
				return err
			}
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE recordings SET status = ?, last_update = ? WHERE id = ?`,
				string(models.StatusRunning), now, recordingID.String())
			if err != nil {
				return fmt.Errorf("failed to mark %s running: %w", recordingID, err)
			}
		}

		inserted = true
		return nil
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return channelID, inserted, nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, channelID uuid.UUID, segments []models.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (id, channel_id, start_sec, end_sec, content, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i, seg := range segments {
		metricsJSON, err := encodeMetrics(seg.Metrics)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			uuid.New().String(), channelID.String(), seg.Start, seg.End, seg.Text, metricsJSON)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d of channel %s: %w", i, channelID, err)
		}
	}
	return nil
}

// ApplyProgress records partial progress. It is ignored when the recording
// is terminal or when the stored percent is greater than the incoming one,
// so the stored percent never decreases. Reaching 100 marks the recording
// done. An absent percent keeps the stored value.
func (db *DB) ApplyProgress(ctx context.Context, id uuid.UUID, msg models.ProgressMsg) (bool, error) {
	applied := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		status, stored, err := loadProgress(ctx, tx, id)
		if err != nil {
			return err
		}
		if status.Terminal() {
			return nil
		}

		percent := stored
		if msg.PercentDone != nil {
			if stored > *msg.PercentDone {
				return nil
			}
			percent = *msg.PercentDone
		}

		next := models.StatusRunning
		if percent == 100 {
			next = models.StatusDone
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE recordings
			SET status = ?, percent = ?,
				progress_channel = COALESCE(?, progress_channel),
				description = COALESCE(?, description),
				last_update = ?
			WHERE id = ?`,
			string(next), percent, nullableInt(msg.Channel), nullableString(msg.Description),
			time.Now().UTC(), id.String())
		if err != nil {
			return fmt.Errorf("failed to update progress of %s: %w", id, err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// ApplyError marks the recording failed with the rendered error text. It
// overrides any state except done, regardless of percent.
func (db *DB) ApplyError(ctx context.Context, id uuid.UUID, msg models.ErrorMsg) (bool, error) {
	applied := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		status, _, err := loadProgress(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == models.StatusDone {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE recordings SET status = ?, error_message = ?, last_update = ? WHERE id = ?`,
			string(models.StatusError), msg.Render(), time.Now().UTC(), id.String())
		if err != nil {
			return fmt.Errorf("failed to record error for %s: %w", id, err)
		}
		applied = true
		return nil
	})
	return applied, err
}
