// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package models

import (
	"github.com/google/uuid"
)

// Envelope is the unit that crosses the work distribution boundary: a job
// correlation ID and a payload. The same shape is used for requests and
// responses; the payload type decides how it is read.
type Envelope[T any] struct {
	ID   uuid.UUID `json:"id"`
	Data T         `json:"data"`
}

// RequestPayload is the work description sent for one recording.
type RequestPayload struct {
	DownloadURL   string  `json:"download_url" validate:"required,url"`
	TranscriptURL *string `json:"transcript_url,omitempty" validate:"omitempty,url"`
	ForceDiarize  *bool   `json:"force_diarize,omitempty"`
}

// RequestEnvelope is published on the request subject.
type RequestEnvelope = Envelope[RequestPayload]

// ResponseEnvelope is published on the result subject.
type ResponseEnvelope = Envelope[Response]

// NewResponseEnvelope wraps payload for job id.
func NewResponseEnvelope(id uuid.UUID, payload ResponsePayload) ResponseEnvelope {
	return ResponseEnvelope{ID: id, Data: Response{Payload: payload}}
}
