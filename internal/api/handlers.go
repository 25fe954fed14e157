// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/sonograph/internal/deadletter"
	"github.com/tomtom215/sonograph/internal/eventprocessor"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/models"
	ws "github.com/tomtom215/sonograph/internal/websocket"
)

// Store is the recording database as seen by the API; *database.DB
// satisfies it.
type Store interface {
	CreateRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	GetProgress(ctx context.Context, id uuid.UUID) (*models.RecordingProgress, error)
	ListRecordings(ctx context.Context) ([]models.Recording, error)
	GetRecordingMetrics(ctx context.Context, id uuid.UUID) ([]models.MetricCollection, error)
	DeleteRecording(ctx context.Context, id uuid.UUID) error
	ResetProgress(ctx context.Context, id uuid.UUID) error

	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	ListChannelIDs(ctx context.Context, recordingID uuid.UUID) ([]uuid.UUID, error)
	SetAssignedName(ctx context.Context, id uuid.UUID, name *string) error
	SegmentsInRange(ctx context.Context, channelID uuid.UUID, start, end float64) ([]models.StoredSegment, error)
	PrevSegment(ctx context.Context, channelID uuid.UUID, t float64) (*models.TimeSpan, error)
	NextSegment(ctx context.Context, channelID uuid.UUID, t float64) (*models.TimeSpan, error)
}

// BlobStore holds uploaded recordings; *storage.BlobStore satisfies it.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

// MediaSigner issues and checks signed media URLs; *storage.URLSigner
// satisfies it.
type MediaSigner interface {
	URL(key string) (string, error)
	Verify(key, token string) error
}

// JobSubmitter publishes analysis requests; *eventprocessor.Submitter
// satisfies it.
type JobSubmitter interface {
	Submit(ctx context.Context, job models.RecordingJob) error
}

// DeadLetterLister lists parked messages; *deadletter.Store satisfies it.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]*deadletter.Entry, error)
	Count(ctx context.Context) (int, error)
}

// HealthReporter aggregates component health; *eventprocessor.HealthChecker
// satisfies it.
type HealthReporter interface {
	CheckAll(ctx context.Context) eventprocessor.OverallHealth
}

// Dependencies are the collaborators of a Handler. DeadLetters and Health
// are optional.
type Dependencies struct {
	Store       Store
	Blobs       BlobStore
	Signer      MediaSigner
	Submitter   JobSubmitter
	Hub         *ws.Hub
	DeadLetters DeadLetterLister
	Health      HealthReporter

	// PublicURL prefixes the links in responses; empty yields
	// host-relative links.
	PublicURL string

	// AllowedOrigins are accepted on progress WebSocket upgrades in addition
	// to the server's own host.
	AllowedOrigins []string
}

// Handler serves the recording API.
type Handler struct {
	store       Store
	blobs       BlobStore
	signer      MediaSigner
	submitter   JobSubmitter
	hub         *ws.Hub
	deadLetters DeadLetterLister
	health      HealthReporter
	baseURL     string
	origins     []string
	startTime   time.Time

	// streamCtx outlives requests; progress streams stop when it is
	// cancelled.
	streamCtx context.Context
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Store == nil || deps.Blobs == nil || deps.Signer == nil || deps.Submitter == nil || deps.Hub == nil {
		return nil, fmt.Errorf("api handler needs a store, a blob store, a signer, a submitter and a hub")
	}
	return &Handler{
		store:       deps.Store,
		blobs:       deps.Blobs,
		signer:      deps.Signer,
		submitter:   deps.Submitter,
		hub:         deps.Hub,
		deadLetters: deps.DeadLetters,
		health:      deps.Health,
		baseURL:     strings.TrimSuffix(deps.PublicURL, "/") + APIPrefix,
		origins:     deps.AllowedOrigins,
		startTime:   time.Now(),
		streamCtx:   context.Background(),
	}, nil
}

// SetStreamContext bounds every progress stream by ctx. Call it before
// serving.
func (h *Handler) SetStreamContext(ctx context.Context) {
	h.streamCtx = ctx
}

func (h *Handler) recordingURL(id uuid.UUID) string {
	return h.baseURL + "/recordings/" + id.String()
}

func (h *Handler) channelURL(id uuid.UUID) string {
	return h.baseURL + "/channels/" + id.String()
}

func (h *Handler) segmentsURL(channelID uuid.UUID, start, end float64) string {
	return h.baseURL + "/channels/" + channelID.String() +
		"/segments?start=" + formatSeconds(start) + "&end=" + formatSeconds(end)
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts non-browser clients, same-host pages and the
// configured CORS origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
