// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	recordingIDKey   contextKey = "recording_id"
)

// ContextWithCorrelationID returns a new context carrying id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID, or "" if none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRecordingID tags ctx with the recording (job) a log line belongs to.
func ContextWithRecordingID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recordingIDKey, id)
}

// RecordingIDFromContext returns the recording ID, or "" if none is set.
func RecordingIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(recordingIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the correlation and recording
// IDs found in ctx.
//
//	logging.Ctx(ctx).Info().Msg("Applied progress")
//	// {"level":"info","correlation_id":"abc12345","recording_id":"...","message":"Applied progress"}
func Ctx(ctx context.Context) *zerolog.Logger {
	c := Logger().With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		c = c.Str("correlation_id", id)
	}
	if id := RecordingIDFromContext(ctx); id != "" {
		c = c.Str("recording_id", id)
	}
	l := c.Logger()
	return &l
}
