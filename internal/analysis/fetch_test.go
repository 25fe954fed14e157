// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "ok" {
			http.Error(w, "bad token", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("RIFF....WAVE"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewHTTPFetcher(dir, 5*time.Second, 0)

	local, cleanup, err := f.Fetch(context.Background(), srv.URL+"/api/v1/media/abc/take1.wav?token=ok")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(local))
	assert.Equal(t, ".wav", filepath.Ext(local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(data))

	cleanup()
	_, err = os.Stat(local)
	assert.True(t, os.IsNotExist(err), "cleanup should remove the scratch file")
}

func TestHTTPFetcher_ClientErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewHTTPFetcher(t.TempDir(), 5*time.Second, 0)
	for i := 0; i < 8; i++ {
		_, cleanup, err := f.Fetch(context.Background(), srv.URL+"/gone.wav")
		require.NotNil(t, cleanup)

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
		assert.True(t, se.Permanent())
	}
	assert.Equal(t, "closed", f.State())
}

func TestHTTPFetcher_ServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(t.TempDir(), 5*time.Second, 0)
	for i := 0; i < 5; i++ {
		_, _, err := f.Fetch(context.Background(), srv.URL+"/a.wav")
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.False(t, se.Permanent())
	}
	assert.Equal(t, "open", f.State())

	_, _, err := f.Fetch(context.Background(), srv.URL+"/a.wav")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
	assert.Equal(t, int32(5), hits.Load(), "an open breaker must not reach the server")
}

func TestHTTPFetcher_RejectsNonHTTP(t *testing.T) {
	f := NewHTTPFetcher(t.TempDir(), time.Second, 0)
	for _, raw := range []string{"file:///etc/passwd", "/tmp/a.wav", "ftp://host/a.wav"} {
		_, cleanup, err := f.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, ErrUnsupportedURL, raw)
		assert.NotNil(t, cleanup)
	}
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/announced.wav":
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			_, _ = w.Write(body)
		case "/chunked.wav":
			// Flushing first drops the length, so only the copy can notice.
			w.(http.Flusher).Flush()
			_, _ = w.Write(body)
		default:
			_, _ = w.Write(body[:16])
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewHTTPFetcher(dir, 5*time.Second, 16)

	for _, name := range []string{"/announced.wav", "/chunked.wav"} {
		_, cleanup, err := f.Fetch(context.Background(), srv.URL+name)
		require.ErrorIs(t, err, ErrDownloadTooLarge, name)
		assert.False(t, Retryable(err), name)
		cleanup()
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected downloads leave no scratch file")

	local, cleanup, err := f.Fetch(context.Background(), srv.URL+"/exact.wav")
	require.NoError(t, err, "a body of exactly the limit is accepted")
	defer cleanup()
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Len(t, data, 16)
	assert.Equal(t, "closed", f.State())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &StatusError{StatusCode: 503}, true},
		{"breaker open", gobreaker.ErrOpenState, true},
		{"transport", fmt.Errorf("download recording: %w", syscall.ECONNREFUSED), true},
		{"forbidden", &StatusError{StatusCode: 403}, false},
		{"too large", fmt.Errorf("%w: limit 1", ErrDownloadTooLarge), false},
		{"bad url", fmt.Errorf("%w: scheme \"file\"", ErrUnsupportedURL), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
