// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package validation wraps go-playground/validator v10 with a shared,
// lazily built validator and readable error messages.
//
// It is used at both edges of the system: envelope payloads decoded from the
// broker (percent range, segment bounds) and request bodies on the HTTP API.
//
//	type ProgressMsg struct {
//	    PercentDone *int `json:"percent_done" validate:"omitempty,min=0,max=100"`
//	}
//
//	if err := validation.ValidateStruct(&msg); err != nil {
//	    var verr *validation.Error
//	    errors.As(err, &verr) // verr.Fields lists each failing rule
//	}
//
// Field names in messages follow the json tag, so a failing segment bound
// reads "segments[1].end must be greater than or equal to start".
package validation
