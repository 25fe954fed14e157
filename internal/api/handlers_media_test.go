// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/sonograph/internal/models"
	"github.com/tomtom215/sonograph/internal/storage"
)

// signedPath turns a signed media URL into a request target for the router.
func signedPath(t *testing.T, signed string) string {
	t.Helper()
	u, err := url.Parse(signed)
	require.NoError(t, err)
	return u.RequestURI()
}

func TestServeMedia(t *testing.T) {
	env := newTestEnv(t)
	stored := env.addRecording(t, models.StatusPending)

	signed, err := env.signer.URL(stored.SourceKey)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, signedPath(t, signed)+"&filename=interview.wav", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "RIFF....WAVE", rec.Body.String())
	assert.Equal(t, `attachment; filename=interview.wav`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
}

func TestServeMedia_Range(t *testing.T) {
	env := newTestEnv(t)
	stored := env.addRecording(t, models.StatusPending)

	signed, err := env.signer.URL(stored.SourceKey)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, signedPath(t, signed), nil, "Range", "bytes=4-7")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "....", rec.Body.String())
	assert.Equal(t, "bytes 4-7/12", rec.Header().Get("Content-Range"))
}

func TestServeMedia_Rejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.addRecording(t, models.StatusPending)
	b := env.addRecording(t, models.StatusPending)

	signedB, err := env.signer.URL(b.SourceKey)
	require.NoError(t, err)
	tokenB := mustQuery(t, signedB, "token")

	signedExpired, err := env.signer.Sign(a.SourceKey, -time.Minute)
	require.NoError(t, err)
	expired := mustQuery(t, signedExpired, "token")

	missing := storage.UploadKey(uuid.New())
	signedMissing, err := env.signer.URL(missing)
	require.NoError(t, err)

	pathA := "/api/v1/media/" + a.SourceKey

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"no token", pathA, http.StatusUnauthorized, CodeUnauthorized, "Media token required"},
		{"garbage token", pathA + "?token=abc", http.StatusUnauthorized, CodeUnauthorized, "Invalid media token"},
		{"token for another key", pathA + "?token=" + url.QueryEscape(tokenB), http.StatusUnauthorized, CodeUnauthorized, "Invalid media token"},
		{"expired token", pathA + "?token=" + expired, http.StatusUnauthorized, CodeUnauthorized, "Media token expired"},
		{"missing blob", signedPath(t, signedMissing), http.StatusNotFound, CodeNotFound, "Media not found"},
		{"traversal", "/api/v1/media/original_upload/..%2F..%2Fetc?token=abc", http.StatusNotFound, CodeNotFound, "Media not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, nil)
			expectError(t, rec, tt.wantStatus, tt.wantCode)
			body := decodeEnvelope(t, rec, nil)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
			assert.False(t, strings.Contains(rec.Body.String(), "RIFF"))
		})
	}
}

func mustQuery(t *testing.T, raw, key string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get(key)
}
