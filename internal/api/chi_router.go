// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/sonograph/internal/middleware"
)

// APIPrefix is the mount point of every API route.
const APIPrefix = "/api/v1"

// NewRouter builds the chi route tree.
func NewRouter(h *Handler, cfg *ChiMiddlewareConfig) http.Handler {
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
	}
	m := NewChiMiddleware(cfg)

	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(m.CORS()) // global so OPTIONS preflight is answered
	r.Use(middleware.AccessLog(cfg.SlowRequest))
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, CodeNotFound, "No such route", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, CodeValidation, "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Health checks are not rate limited so orchestrators never see 429.
	r.Route(APIPrefix+"/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(m.RateLimit())
		r.Use(m.BodyLimit())

		r.Route("/recordings", func(r chi.Router) {
			r.Post("/", h.UploadRecording)
			r.Get("/", h.ListRecordings)
			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.Compression).Get("/", h.GetRecording)
				r.Delete("/", h.DeleteRecording)
				r.Post("/analyze", h.ReanalyzeRecording)
				r.Get("/progress/ws", h.ProgressStream)
			})
		})

		r.Route("/channels/{id}", func(r chi.Router) {
			r.Get("/", h.GetChannel)
			r.Put("/name", h.SetChannelName)
			r.With(middleware.Compression).Get("/segments", h.ChannelSegments)
		})

		r.Get("/media/*", h.ServeMedia)
		r.Get("/deadletters", h.ListDeadLetters)
	})

	return r
}
