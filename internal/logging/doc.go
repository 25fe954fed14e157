// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package logging provides the zerolog-based global logger used by every
// Sonograph component, plus adapters for libraries that bring their own
// logging interface.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("recording_id", id).Msg("Job submitted")
//	logging.Error().Err(err).Msg("Apply failed")
//
// # Context
//
// Correlation and recording IDs travel in context.Context and are added to
// every line written through Ctx:
//
//	ctx = logging.ContextWithRecordingID(ctx, env.ID.String())
//	logging.Ctx(ctx).Debug().Msg("Applying channel metrics")
//
// # Adapters
//
//   - SlogHandler / NewSlogLogger: slog.Handler for sutureslog event hooks
//   - WatermillAdapter: watermill.LoggerAdapter for publishers, subscribers and routers
//
// Worker child processes call Init with the same configuration as the parent
// and write to stderr, which the parent inherits.
//
// Always terminate log chains with .Msg() or .Send(); an event that is never
// sent is silently dropped.
package logging
