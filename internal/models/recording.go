// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the lifecycle state of a recording's analysis.
type AnalysisStatus string

const (
	StatusPending AnalysisStatus = "pending"
	StatusRunning AnalysisStatus = "running"
	StatusDone    AnalysisStatus = "done"
	StatusError   AnalysisStatus = "error"
)

// Terminal reports whether no further status transition is allowed.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// RecordingJob is what the submitter needs to build a request envelope.
// It is immutable once sent.
type RecordingJob struct {
	ID            uuid.UUID
	SourceKey     string
	TranscriptKey *string
	ForceDiarize  *bool
}

// Recording is a stored recording row.
type Recording struct {
	ID               uuid.UUID         `json:"id"`
	OriginalFilename string            `json:"original_filename"`
	SourceKey        string            `json:"-"`
	TranscriptKey    *string           `json:"-"`
	ForceDiarize     *bool             `json:"force_diarize,omitempty"`
	UploadedAt       time.Time         `json:"uploaded_at"`
	Progress         RecordingProgress `json:"progress"`
}

// Job returns the submission view of the recording.
func (r *Recording) Job() RecordingJob {
	return RecordingJob{
		ID:            r.ID,
		SourceKey:     r.SourceKey,
		TranscriptKey: r.TranscriptKey,
		ForceDiarize:  r.ForceDiarize,
	}
}

// RecordingProgress is owned by the result ingestor.
type RecordingProgress struct {
	Status      AnalysisStatus `json:"status"`
	Percent     int            `json:"percent"`
	Channel     *int           `json:"channel,omitempty"`
	Description *string        `json:"description,omitempty"`
	Error       *string        `json:"error,omitempty"`
	LastUpdate  time.Time      `json:"last_update"`
}

// Channel is an ingested audio channel.
type Channel struct {
	ID           uuid.UUID          `json:"id"`
	RecordingID  uuid.UUID          `json:"recording_id"`
	Idx          int                `json:"idx"`
	AssignedName *string            `json:"assigned_name"`
	Metrics      []MetricCollection `json:"metrics"`
}

// StoredSegment is an ingested segment of a channel.
type StoredSegment struct {
	ID        uuid.UUID          `json:"id"`
	ChannelID uuid.UUID          `json:"channel_id"`
	Start     float64            `json:"start"`
	End       float64            `json:"end"`
	Text      string             `json:"text"`
	Metrics   []MetricCollection `json:"metrics"`
}

// TimeSpan is a segment's position without its content. The read API uses it
// to build previous and next page links.
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
