// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/models"
)

// segmentWindow is the width in seconds added to the neighbouring segment
// when building previous and next page links.
const segmentWindow = 30.0

// firstPageEnd is the end of the window linked from a channel view.
const firstPageEnd = 3600.0

// GetChannel returns a channel with its metrics and the link to its first
// page of segments.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ch, err := h.store.GetChannel(r.Context(), id)
	if !h.checkLookup(w, err, "channel") {
		return
	}
	metrics := ch.Metrics
	if metrics == nil {
		metrics = []models.MetricCollection{}
	}

	respondData(w, http.StatusOK, models.ChannelView{
		SelfURL:          h.channelURL(id),
		RecordingURL:     h.recordingURL(ch.RecordingID),
		Idx:              ch.Idx,
		AssignedName:     ch.AssignedName,
		SegmentsBeginURL: h.segmentsURL(id, 0, firstPageEnd),
		Metrics:          metrics,
	}, start)
}

// SetChannelName sets the display name from a JSON string body, or clears
// it for null or a blank string.
func (h *Handler) SetChannelName(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var name *string
	if err := json.NewDecoder(r.Body).Decode(&name); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "Body must be a JSON string or null", nil)
		return
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			name = nil
		} else {
			name = &trimmed
		}
	}

	req := AssignedNameRequest{Name: name}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	if err := h.store.SetAssignedName(r.Context(), id, req.Name); !h.checkLookup(w, err, "channel") {
		return
	}

	logging.Ctx(r.Context()).Debug().Str("channel_id", id.String()).Msg("Channel renamed")
	w.WriteHeader(http.StatusNoContent)
}

// ChannelSegments returns the segments lying entirely within [start, end],
// with links to the windows around the nearest segments outside it.
func (h *Handler) ChannelSegments(w http.ResponseWriter, r *http.Request) {
	begin := time.Now()
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	start, okStart := getFloatParam(r, "start", 0)
	end, okEnd := getFloatParam(r, "end", math.MaxFloat64)
	if !okStart || !okEnd || math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		respondError(w, http.StatusBadRequest, CodeValidation, "start and end must be finite numbers of seconds", nil)
		return
	}
	req := SegmentWindowRequest{Start: start, End: end}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	ctx := r.Context()
	if _, err := h.store.GetChannel(ctx, id); !h.checkLookup(w, err, "channel") {
		return
	}

	segments, err := h.store.SegmentsInRange(ctx, id, req.Start, req.End)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to load segments", err)
		return
	}

	page := models.SegmentPage{Segments: segments}

	prev, err := h.store.PrevSegment(ctx, id, req.Start)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to load segments", err)
		return
	}
	if prev != nil {
		u := h.segmentsURL(id, math.Max(0, prev.Start-segmentWindow), prev.End)
		page.PrevURL = &u
	}

	next, err := h.store.NextSegment(ctx, id, req.End)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to load segments", err)
		return
	}
	if next != nil {
		u := h.segmentsURL(id, next.Start, next.End+segmentWindow)
		page.NextURL = &u
	}

	respondData(w, http.StatusOK, page, begin)
}
