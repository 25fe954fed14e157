// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/sonograph/internal/middleware"
	"github.com/tomtom215/sonograph/internal/models"
	ws "github.com/tomtom215/sonograph/internal/websocket"
)

func TestRouter_RequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/recordings", nil)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/api/v1/recordings", nil, middleware.RequestIDHeader, "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_UnknownRoutesAreJSON(t *testing.T) {
	env := newTestEnv(t)

	expectError(t, env.do(t, http.MethodGet, "/api/v1/nope", nil), http.StatusNotFound, CodeNotFound)
	expectError(t, env.do(t, http.MethodPatch, "/api/v1/recordings", nil), http.StatusMethodNotAllowed, CodeValidation)
}

func TestRouter_RateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *Dependencies, cfg *ChiMiddlewareConfig) {
		cfg.RateLimitDisabled = false
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/recordings", nil).Code)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/v1/recordings", nil), http.StatusTooManyRequests, CodeRateLimited)

	// Health checks are exempt.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health/live", nil).Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(_ *Dependencies, cfg *ChiMiddlewareConfig) {
		cfg.CORSAllowedOrigins = []string{"https://app.example.com"}
	})

	rec := env.do(t, http.MethodOptions, "/api/v1/recordings", nil,
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", http.MethodPost,
	)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/recordings", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sonograph_api_requests_total")
}

func TestRouter_CompressesSegments(t *testing.T) {
	env := newTestEnv(t)
	stored := env.addRecording(t, models.StatusDone)
	ch := env.addChannel(stored.ID, 0, [2]float64{0, 1})

	rec := env.do(t, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/segments", nil, "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

// dialProgress opens a progress stream through a real server.
func dialProgress(t *testing.T, env *testEnv, id uuid.UUID, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	env.handler.SetStreamContext(ctx)
	server := httptest.NewServer(env.router)
	t.Cleanup(server.Close)
	t.Cleanup(cancel)

	target := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/recordings/" + id.String() + "/progress/ws"
	return websocket.DefaultDialer.Dial(target, header)
}

func readProgress(t *testing.T, conn *websocket.Conn) models.RecordingProgress {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string                   `json:"type"`
		Data models.RecordingProgress `json:"data"`
	}
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, ws.MessageTypeProgress, msg.Type)
	return msg.Data
}

func TestProgressStream(t *testing.T) {
	env := newTestEnv(t)
	stored := env.addRecording(t, models.StatusRunning)

	conn, _, err := dialProgress(t, env, stored.ID, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readProgress(t, conn)
	assert.Equal(t, models.StatusRunning, first.Status)

	env.store.setStatus(stored.ID, models.StatusRunning, 40)
	env.hub.Notify(stored.ID)
	assert.Equal(t, 40, readProgress(t, conn).Percent)

	env.store.setStatus(stored.ID, models.StatusDone, 100)
	env.hub.Notify(stored.ID)
	assert.Equal(t, models.StatusDone, readProgress(t, conn).Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestProgressStream_UnknownRecording(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := dialProgress(t, env, uuid.New(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressStream_ForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	stored := env.addRecording(t, models.StatusRunning)

	_, resp, err := dialProgress(t, env, stored.ID, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
