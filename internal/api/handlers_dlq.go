// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/sonograph/internal/deadletter"
)

// DeadLetterList is the body of the dead-letter listing.
type DeadLetterList struct {
	Total   int                 `json:"total"`
	Entries []*deadletter.Entry `json:"entries"`
}

// ListDeadLetters returns the newest parked result messages.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deadLetters == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Dead-letter store is not configured", nil)
		return
	}

	req := DeadLetterListRequest{Limit: getIntParam(r, "limit", 100)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	entries, err := h.deadLetters.List(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDeadLetterFailed, "Failed to list dead letters", err)
		return
	}
	total, err := h.deadLetters.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDeadLetterFailed, "Failed to count dead letters", err)
		return
	}
	if entries == nil {
		entries = []*deadletter.Entry{}
	}

	respondData(w, http.StatusOK, DeadLetterList{Total: total, Entries: entries}, start)
}
