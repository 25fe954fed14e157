// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/database"
	"github.com/tomtom215/sonograph/internal/deadletter"
	"github.com/tomtom215/sonograph/internal/eventprocessor"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/models"
	"github.com/tomtom215/sonograph/internal/storage"
	ws "github.com/tomtom215/sonograph/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

var errDB = errors.New("database is locked")

// fakeStore keeps recordings, channels and segments in maps and mirrors the
// query semantics of the DuckDB store.
type fakeStore struct {
	mu         sync.Mutex
	recordings map[uuid.UUID]*models.Recording
	metrics    map[uuid.UUID][]models.MetricCollection
	channels   map[uuid.UUID]*models.Channel
	segments   map[uuid.UUID][]models.StoredSegment
	failCreate bool
	failList   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recordings: make(map[uuid.UUID]*models.Recording),
		metrics:    make(map[uuid.UUID][]models.MetricCollection),
		channels:   make(map[uuid.UUID]*models.Channel),
		segments:   make(map[uuid.UUID][]models.StoredSegment),
	}
}

func (s *fakeStore) CreateRecording(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errDB
	}
	rec.Progress = models.RecordingProgress{Status: models.StatusPending, LastUpdate: rec.UploadedAt}
	cp := *rec
	s.recordings[rec.ID] = &cp
	return nil
}

func (s *fakeStore) GetRecording(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) GetProgress(ctx context.Context, id uuid.UUID) (*models.RecordingProgress, error) {
	rec, err := s.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec.Progress, nil
}

func (s *fakeStore) ListRecordings(_ context.Context) ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errDB
	}
	out := make([]models.Recording, 0, len(s.recordings))
	for _, rec := range s.recordings {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *fakeStore) GetRecordingMetrics(_ context.Context, id uuid.UUID) ([]models.MetricCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics[id], nil
}

func (s *fakeStore) DeleteRecording(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recordings[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.recordings, id)
	delete(s.metrics, id)
	for chID, ch := range s.channels {
		if ch.RecordingID == id {
			delete(s.channels, chID)
			delete(s.segments, chID)
		}
	}
	return nil
}

func (s *fakeStore) ResetProgress(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return database.ErrNotFound
	}
	rec.Progress = models.RecordingProgress{Status: models.StatusPending, LastUpdate: time.Now().UTC()}
	return nil
}

func (s *fakeStore) GetChannel(_ context.Context, id uuid.UUID) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *fakeStore) ListChannelIDs(_ context.Context, recordingID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chs []*models.Channel
	for _, ch := range s.channels {
		if ch.RecordingID == recordingID {
			chs = append(chs, ch)
		}
	}
	sort.Slice(chs, func(i, j int) bool { return chs[i].Idx < chs[j].Idx })
	ids := make([]uuid.UUID, len(chs))
	for i, ch := range chs {
		ids[i] = ch.ID
	}
	return ids, nil
}

func (s *fakeStore) SetAssignedName(_ context.Context, id uuid.UUID, name *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return database.ErrNotFound
	}
	ch.AssignedName = name
	return nil
}

func (s *fakeStore) SegmentsInRange(_ context.Context, channelID uuid.UUID, start, end float64) ([]models.StoredSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.StoredSegment{}
	for _, seg := range s.segments[channelID] {
		if seg.Start >= start && seg.End <= end {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (s *fakeStore) PrevSegment(_ context.Context, channelID uuid.UUID, t float64) (*models.TimeSpan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.TimeSpan
	for _, seg := range s.segments[channelID] {
		if seg.End < t && (best == nil || seg.End > best.End) {
			best = &models.TimeSpan{Start: seg.Start, End: seg.End}
		}
	}
	return best, nil
}

func (s *fakeStore) NextSegment(_ context.Context, channelID uuid.UUID, t float64) (*models.TimeSpan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.TimeSpan
	for _, seg := range s.segments[channelID] {
		if seg.Start > t && (best == nil || seg.Start < best.Start) {
			best = &models.TimeSpan{Start: seg.Start, End: seg.End}
		}
	}
	return best, nil
}

func (s *fakeStore) setStatus(id uuid.UUID, status models.AnalysisStatus, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordings[id]
	rec.Progress.Status = status
	rec.Progress.Percent = percent
	rec.Progress.LastUpdate = time.Now().UTC()
}

// addRecording stores a recording together with its blob.
func (e *testEnv) addRecording(t *testing.T, status models.AnalysisStatus) *models.Recording {
	t.Helper()
	id := uuid.New()
	rec := &models.Recording{
		ID:               id,
		OriginalFilename: "interview.wav",
		SourceKey:        storage.UploadKey(id),
		UploadedAt:       time.Now().UTC(),
	}
	if _, err := e.blobs.Put(context.Background(), rec.SourceKey, bytes.NewReader([]byte("RIFF....WAVE"))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.store.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecording failed: %v", err)
	}
	e.store.setStatus(id, status, 0)
	return rec
}

func (e *testEnv) addChannel(recordingID uuid.UUID, idx int, spans ...[2]float64) *models.Channel {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	ch := &models.Channel{ID: uuid.New(), RecordingID: recordingID, Idx: idx}
	e.store.channels[ch.ID] = ch
	for _, sp := range spans {
		e.store.segments[ch.ID] = append(e.store.segments[ch.ID], models.StoredSegment{
			ID: uuid.New(), ChannelID: ch.ID, Start: sp[0], End: sp[1], Text: "words",
			Metrics: []models.MetricCollection{},
		})
	}
	return ch
}

type fakeSubmitter struct {
	mu   sync.Mutex
	err  error
	jobs []models.RecordingJob
}

func (s *fakeSubmitter) Submit(_ context.Context, job models.RecordingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *fakeSubmitter) Jobs() []models.RecordingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RecordingJob(nil), s.jobs...)
}

type fakeDeadLetters struct {
	entries []*deadletter.Entry
}

func (d *fakeDeadLetters) List(_ context.Context, limit int) ([]*deadletter.Entry, error) {
	if limit < len(d.entries) {
		return d.entries[:limit], nil
	}
	return d.entries, nil
}

func (d *fakeDeadLetters) Count(_ context.Context) (int, error) {
	return len(d.entries), nil
}

type fakeHealth struct {
	healthy bool
}

func (f fakeHealth) CheckAll(_ context.Context) eventprocessor.OverallHealth {
	status := eventprocessor.HealthStatusHealthy
	if !f.healthy {
		status = eventprocessor.HealthStatusUnhealthy
	}
	return eventprocessor.OverallHealth{
		Healthy: f.healthy,
		Status:  status,
		Components: []eventprocessor.ComponentHealth{
			{Name: "database", Healthy: f.healthy},
		},
	}
}

type testEnv struct {
	store     *fakeStore
	blobs     *storage.BlobStore
	blobDir   string
	signer    *storage.URLSigner
	submitter *fakeSubmitter
	hub       *ws.Hub
	handler   *Handler
	router    http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*Dependencies, *ChiMiddlewareConfig)) *testEnv {
	t.Helper()

	blobDir := t.TempDir()
	blobs, err := storage.NewBlobStore(&config.StorageConfig{Dir: blobDir})
	if err != nil {
		t.Fatalf("NewBlobStore failed: %v", err)
	}
	signer, err := storage.NewURLSigner("test-secret", "http://sonograph.test", time.Hour)
	if err != nil {
		t.Fatalf("NewURLSigner failed: %v", err)
	}

	env := &testEnv{
		store:     newFakeStore(),
		blobs:     blobs,
		blobDir:   blobDir,
		signer:    signer,
		submitter: &fakeSubmitter{},
		hub:       ws.NewHub(),
	}
	deps := Dependencies{
		Store:     env.store,
		Blobs:     blobs,
		Signer:    signer,
		Submitter: env.submitter,
		Hub:       env.hub,
		PublicURL: "http://sonograph.test",
	}
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	for _, fn := range mutate {
		fn(&deps, cfg)
	}

	env.handler, err = NewHandler(deps)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	env.router = NewRouter(env.handler, cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode envelope %q: %v", rec.Body.String(), err)
	}
	if data != nil && env.Status == "success" {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("Failed to decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec, nil)
	if env.Status != "error" || env.Error == nil {
		t.Fatalf("Expected error envelope, got %s", rec.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("Expected error code %s, got %s", code, env.Error.Code)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	var (
		w   io.Writer
		err error
	)
	if filename == "" {
		w, err = mw.CreateFormField(field)
	} else {
		w, err = mw.CreateFormFile(field, filename)
	}
	if err != nil {
		t.Fatalf("Failed to create multipart part: %v", err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatalf("Failed to write multipart part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := NewHandler(Dependencies{}); err == nil {
		t.Error("Expected an error for missing dependencies")
	}
}
