// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/database"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/models"
	"github.com/tomtom215/sonograph/internal/storage"
	ws "github.com/tomtom215/sonograph/internal/websocket"
)

// UploadRecording stores the first multipart file, creates a pending
// recording and submits it for analysis. A failed submission rolls back
// both the row and the blob.
func (h *Handler) UploadRecording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "Expected a multipart/form-data upload", nil)
		return
	}
	part, err := mr.NextPart()
	if errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, CodeValidation, "No file in upload", nil)
		return
	}
	if err != nil {
		if isTooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "Upload too large", nil)
			return
		}
		respondError(w, http.StatusBadRequest, CodeValidation, "Malformed multipart body", err)
		return
	}
	defer part.Close()

	filename := filepath.Base(strings.ReplaceAll(part.FileName(), "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		respondError(w, http.StatusBadRequest, CodeValidation, "Uploaded file must have a filename", nil)
		return
	}

	id := uuid.New()
	ctx = logging.ContextWithRecordingID(ctx, id.String())
	key := storage.UploadKey(id)

	size, err := h.blobs.Put(ctx, key, part)
	if err != nil {
		if isTooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "Upload too large", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, CodeStorage, "Failed to store upload", err)
		return
	}

	rec := &models.Recording{
		ID:               id,
		OriginalFilename: filename,
		SourceKey:        key,
		UploadedAt:       time.Now().UTC(),
	}
	if err := h.store.CreateRecording(ctx, rec); err != nil {
		h.discardBlob(r, key)
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to create recording", err)
		return
	}

	if err := h.submitter.Submit(ctx, rec.Job()); err != nil {
		if delErr := h.store.DeleteRecording(ctx, id); delErr != nil {
			logging.Ctx(ctx).Error().Err(delErr).Msg("Failed to roll back recording after submission failure")
		}
		h.discardBlob(r, key)
		respondError(w, http.StatusBadGateway, CodeSubmission, "Failed to submit recording for analysis", err)
		return
	}

	logging.Ctx(ctx).Info().
		Str("filename", sanitizeLogValue(filename)).
		Int64("bytes", size).
		Msg("Recording uploaded")

	w.Header().Set("Location", h.recordingURL(id))
	respondData(w, http.StatusCreated, models.UploadResponse{UploadID: id}, start)
}

func (h *Handler) discardBlob(r *http.Request, key string) {
	if err := h.blobs.Delete(key); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("Failed to discard blob")
	}
}

// ListRecordings returns the id and URL of every recording.
func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	recs, err := h.store.ListRecordings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to list recordings", err)
		return
	}

	out := make([]models.RecordingSummary, len(recs))
	for i, rec := range recs {
		out[i] = models.RecordingSummary{ID: rec.ID, URL: h.recordingURL(rec.ID)}
	}
	respondData(w, http.StatusOK, out, start)
}

// GetRecording returns progress, metrics, channel links and a signed
// download URL.
func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	rec, err := h.store.GetRecording(ctx, id)
	if !h.checkLookup(w, err, "recording") {
		return
	}

	metrics, err := h.store.GetRecordingMetrics(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to load recording metrics", err)
		return
	}
	if metrics == nil {
		metrics = []models.MetricCollection{}
	}

	channelIDs, err := h.store.ListChannelIDs(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to list channels", err)
		return
	}
	channels := make([]string, len(channelIDs))
	for i, chID := range channelIDs {
		channels[i] = h.channelURL(chID)
	}

	downloadURL, err := h.signer.URL(rec.SourceKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeStorage, "Failed to sign download URL", err)
		return
	}
	downloadURL += "&filename=" + url.QueryEscape(rec.OriginalFilename)

	respondData(w, http.StatusOK, models.RecordingView{
		SelfURL:          h.recordingURL(id),
		ID:               rec.ID,
		OriginalFilename: rec.OriginalFilename,
		UploadedAt:       rec.UploadedAt,
		DownloadURL:      downloadURL,
		Channels:         channels,
		Metrics:          metrics,
		Progress:         rec.Progress,
	}, start)
}

// DeleteRecording removes the recording with all its results, then its
// blob.
func (h *Handler) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	ctx := logging.ContextWithRecordingID(r.Context(), id.String())

	rec, err := h.store.GetRecording(ctx, id)
	if !h.checkLookup(w, err, "recording") {
		return
	}
	if err := h.store.DeleteRecording(ctx, id); !h.checkLookup(w, err, "recording") {
		return
	}
	h.discardBlob(r, rec.SourceKey)
	h.hub.Notify(id)

	logging.Ctx(ctx).Info().Msg("Recording deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ReanalyzeRecording discards previous results and submits the recording
// again. A running analysis must finish first.
func (h *Handler) ReanalyzeRecording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	ctx := logging.ContextWithRecordingID(r.Context(), id.String())

	rec, err := h.store.GetRecording(ctx, id)
	if !h.checkLookup(w, err, "recording") {
		return
	}
	if rec.Progress.Status == models.StatusRunning {
		respondError(w, http.StatusConflict, CodeConflict, "Analysis is still running", nil)
		return
	}

	if err := h.store.ResetProgress(ctx, id); !h.checkLookup(w, err, "recording") {
		return
	}
	h.hub.Notify(id)

	if err := h.submitter.Submit(ctx, rec.Job()); err != nil {
		respondError(w, http.StatusBadGateway, CodeSubmission, "Failed to submit recording for analysis", err)
		return
	}

	progress, err := h.store.GetProgress(ctx, id)
	if !h.checkLookup(w, err, "recording") {
		return
	}
	w.Header().Set("Location", h.recordingURL(id))
	respondData(w, http.StatusAccepted, progress, start)
}

// ProgressStream upgrades to a WebSocket that pushes the recording's
// progress on every change until the analysis finishes.
func (h *Handler) ProgressStream(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetProgress(r.Context(), id); !h.checkLookup(w, err, "recording") {
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	// The request context ends when the handler returns; the stream is
	// bounded by the server's lifetime instead.
	ws.NewClient(h.hub, conn, id, h.store).Serve(h.streamCtx)
}

// checkLookup answers 404 or 500 for a failed lookup and reports whether
// the handler may continue.
func (h *Handler) checkLookup(w http.ResponseWriter, err error, what string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, strings.ToUpper(what[:1])+what[1:]+" not found", nil)
	default:
		respondError(w, http.StatusInternalServerError, CodeDatabase, "Failed to load "+what, err)
	}
	return false
}
