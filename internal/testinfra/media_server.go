// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

//go:build integration

package testinfra

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MediaRequest is one captured download.
type MediaRequest struct {
	Path  string
	Token string
}

// MediaServer stands in for the media endpoint of the API: it answers every
// GET with Body and records what was asked for.
type MediaServer struct {
	Server *httptest.Server

	// Body is returned for every download.
	Body []byte

	mu       sync.Mutex
	requests []MediaRequest
}

// NewMediaServer starts a media server that is closed when the test ends.
func NewMediaServer(t *testing.T, body []byte) *MediaServer {
	t.Helper()

	ms := &MediaServer{Body: body}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ms.mu.Lock()
		ms.requests = append(ms.requests, MediaRequest{
			Path:  r.URL.Path,
			Token: r.URL.Query().Get("token"),
		})
		ms.mu.Unlock()

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(ms.Body) //nolint:errcheck
	}))
	t.Cleanup(ms.Server.Close)

	return ms
}

// URL returns the server URL.
func (m *MediaServer) URL() string {
	return m.Server.URL
}

// Requests returns the downloads seen so far.
func (m *MediaServer) Requests() []MediaRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MediaRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// WaitForRequests waits until at least n downloads were seen.
func (m *MediaServer) WaitForRequests(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.Requests()) >= n {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}
