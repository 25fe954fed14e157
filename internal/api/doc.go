// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package api serves the recording upload and read API over chi.

Every JSON body uses the models.APIResponse envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "...", "query_time_ms": 2}}
	{"status": "error", "data": null, "metadata": {...}, "error": {"code": "NOT_FOUND", "message": "..."}}

Routes (under /api/v1):

	POST   /recordings                   multipart upload, 201 + Location
	GET    /recordings                   ids and links
	GET    /recordings/{id}              progress, metrics, channels, signed download URL
	DELETE /recordings/{id}              204
	POST   /recordings/{id}/analyze      reset and resubmit, 202
	GET    /recordings/{id}/progress/ws  WebSocket progress stream
	GET    /channels/{id}                channel view
	PUT    /channels/{id}/name           JSON string or null, 204
	GET    /channels/{id}/segments       ?start=&end= window with prev/next links
	GET    /media/{key}?token=           signed blob download
	GET    /deadletters                  parked result messages
	GET    /health/live, /health/ready   liveness and readiness

Prometheus metrics are served at /metrics outside the API prefix.

Error mapping: database.ErrNotFound is 404, validation failures are 400, an
invalid or expired media token is 401 and a failed submission is 502.
*/
package api
