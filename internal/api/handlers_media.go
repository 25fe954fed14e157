// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/sonograph/internal/storage"
)

// ServeMedia serves a blob to the holder of a signed URL. Analysis workers
// download recordings through it. Range requests are supported.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || !storage.ValidKey(key) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Media not found", nil)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "Media token required", nil)
		return
	}
	switch err := h.signer.Verify(key, token); {
	case err == nil:
	case errors.Is(err, storage.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "Media token expired", nil)
		return
	default:
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid media token", nil)
		return
	}

	f, err := h.blobs.Open(key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Media not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeStorage, "Failed to open media", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeStorage, "Failed to open media", err)
		return
	}

	name := path.Base(key)
	if filename := r.URL.Query().Get("filename"); filename != "" {
		name = path.Base(filename)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
