// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/sonograph/internal/logging"
)

func TestAccessLog_WarnsOnSlowRequests(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { logging.Init(logging.DefaultConfig()) })

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(10 * time.Millisecond))
	r.Get("/fast", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/slow/{id}", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fast", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow/42", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 access log lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"level":"debug"`) || !strings.Contains(lines[0], `"route":"/fast"`) {
		t.Errorf("Unexpected fast request line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) ||
		!strings.Contains(lines[1], `"route":"/slow/{id}"`) ||
		!strings.Contains(lines[1], `"status":202`) ||
		!strings.Contains(lines[1], `"correlation_id"`) {
		t.Errorf("Unexpected slow request line: %s", lines[1])
	}
}
