// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

// SegmentWindowRequest is the query of a segment page. End defaults to the
// largest representable time.
type SegmentWindowRequest struct {
	Start float64 `json:"start" validate:"gte=0"`
	End   float64 `json:"end" validate:"gtefield=Start"`
}

// AssignedNameRequest is the body of a channel rename; nil clears the name.
type AssignedNameRequest struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=256"`
}

// DeadLetterListRequest is the query of the dead-letter listing.
type DeadLetterListRequest struct {
	Limit int `json:"limit" validate:"min=1,max=1000"`
}
