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

	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/models"
)

// GetChannel returns a channel, or ErrNotFound.
func (db *DB) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var (
		ch           models.Channel
		recordingID  string
		assignedName sql.NullString
		metricsJSON  string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT recording_id, idx, assigned_name, metrics_json
		FROM channels WHERE id = ?`, id.String()).
		Scan(&recordingID, &ch.Idx, &assignedName, &metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", id, err)
	}

	ch.ID = id
	if ch.RecordingID, err = uuid.Parse(recordingID); err != nil {
		return nil, fmt.Errorf("stored recording id %q: %w", recordingID, err)
	}
	ch.AssignedName = stringPtr(assignedName)
	if ch.Metrics, err = decodeMetrics(metricsJSON); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannelIDs returns the channel ids of a recording ordered by idx.
func (db *DB) ListChannelIDs(ctx context.Context, recordingID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM channels WHERE recording_id = ? ORDER BY idx`, recordingID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list channels of %s: %w", recordingID, err)
	}
	defer closeQuietly(rows)

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan channel id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("stored channel id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetAssignedName sets or clears (nil) the display name of a channel.
func (db *DB) SetAssignedName(ctx context.Context, id uuid.UUID, name *string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE channels SET assigned_name = ? WHERE id = ?`, nullableString(name), id.String())
	if err != nil {
		return fmt.Errorf("failed to set name of channel %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set name of channel %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SegmentsInRange returns the segments of a channel that lie entirely within
// [start, end], ordered by start.
func (db *DB) SegmentsInRange(ctx context.Context, channelID uuid.UUID, start, end float64) ([]models.StoredSegment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, start_sec, end_sec, content, metrics_json
		FROM segments
		WHERE channel_id = ? AND start_sec >= ? AND end_sec <= ?
		ORDER BY start_sec, end_sec`,
		channelID.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments of %s: %w", channelID, err)
	}
	defer closeQuietly(rows)

	segments := []models.StoredSegment{}
	for rows.Next() {
		var (
			seg         models.StoredSegment
			id          string
			metricsJSON string
		)
		if err := rows.Scan(&id, &seg.Start, &seg.End, &seg.Text, &metricsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if seg.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("stored segment id %q: %w", id, err)
		}
		if seg.Metrics, err = decodeMetrics(metricsJSON); err != nil {
			return nil, err
		}
		seg.ChannelID = channelID
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// PrevSegment returns the span of the last segment ending before t, or nil.
func (db *DB) PrevSegment(ctx context.Context, channelID uuid.UUID, t float64) (*models.TimeSpan, error) {
	return db.neighbour(ctx, `
		SELECT start_sec, end_sec FROM segments
		WHERE channel_id = ? AND end_sec < ?
		ORDER BY end_sec DESC LIMIT 1`, channelID, t)
}

// NextSegment returns the span of the first segment starting after t, or nil.
func (db *DB) NextSegment(ctx context.Context, channelID uuid.UUID, t float64) (*models.TimeSpan, error) {
	return db.neighbour(ctx, `
		SELECT start_sec, end_sec FROM segments
		WHERE channel_id = ? AND start_sec > ?
		ORDER BY start_sec ASC LIMIT 1`, channelID, t)
}

func (db *DB) neighbour(ctx context.Context, query string, channelID uuid.UUID, t float64) (*models.TimeSpan, error) {
	var span models.TimeSpan
	err := db.conn.QueryRowContext(ctx, query, channelID.String(), t).Scan(&span.Start, &span.End)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbouring segment of %s: %w", channelID, err)
	}
	return &span, nil
}
