// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package models

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the wrapper for every JSON body served by the HTTP API.
//
//	{
//	  "status": "success",
//	  "data": {...},
//	  "metadata": {"timestamp": "2026-01-12T12:00:00Z", "query_time_ms": 3}
//	}
//
// On failure status is "error" and Error is set.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a machine-readable error code plus a message.
//
// Codes: VALIDATION_ERROR, NOT_FOUND, DATABASE_ERROR, STORAGE_ERROR,
// SUBMISSION_FAILED, UNAUTHORIZED.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RecordingSummary is one entry of the recording list.
type RecordingSummary struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
}

// RecordingView is the detail view of a recording.
type RecordingView struct {
	SelfURL          string             `json:"self_url"`
	ID               uuid.UUID          `json:"id"`
	OriginalFilename string             `json:"original_filename"`
	UploadedAt       time.Time          `json:"uploaded_at"`
	DownloadURL      string             `json:"download_url"`
	Channels         []string           `json:"channels"`
	Metrics          []MetricCollection `json:"metrics"`
	Progress         RecordingProgress  `json:"progress"`
}

// ChannelView is the detail view of a channel.
type ChannelView struct {
	SelfURL          string             `json:"self_url"`
	RecordingURL     string             `json:"recording_url"`
	Idx              int                `json:"idx"`
	AssignedName     *string            `json:"assigned_name"`
	SegmentsBeginURL string             `json:"segments_begin_url"`
	Metrics          []MetricCollection `json:"metrics"`
}

// SegmentPage is one window of a channel's segments.
type SegmentPage struct {
	PrevURL  *string         `json:"prev_url"`
	NextURL  *string         `json:"next_url"`
	Segments []StoredSegment `json:"segments"`
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	UploadID uuid.UUID `json:"upload_id"`
}
