// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package middleware provides the chi middleware shared by the read and
upload API.

Key Components:

  - RequestID: X-Request-ID tracking; the ID doubles as the log correlation ID
  - PrometheusMetrics: request counts and latency labelled by route pattern
  - Compression: pooled gzip writers for JSON responses
  - AccessLog: per-request debug logging with a slow-request warning

Middleware Stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(2 * time.Second))
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.Compression)

PrometheusMetrics and AccessLog read the chi route pattern after the
handler returns, so they must be mounted on a chi router rather than
wrapped around it.
*/
package middleware
