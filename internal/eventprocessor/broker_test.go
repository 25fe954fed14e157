// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/database"
	"github.com/tomtom215/sonograph/internal/deadletter"
	"github.com/tomtom215/sonograph/internal/models"
)

// startTestBroker runs an embedded JetStream server on a random port.
func startTestBroker(t *testing.T) (*Broker, *config.NATSConfig) {
	t.Helper()

	nc := testNATSConfig()
	nc.StoreDir = t.TempDir()
	nc.AckWait = 5 * time.Second
	nc.ReceiveTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := StartBroker(ctx, nc)
	if err != nil {
		t.Fatalf("StartBroker failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.Close(ctx); err != nil {
			t.Errorf("broker close: %v", err)
		}
	})
	return b, nc
}

func TestStartBroker(t *testing.T) {
	b, _ := startTestBroker(t)

	if b.URL() == "" {
		t.Error("Expected a client URL")
	}
	if !b.Healthy(context.Background()) {
		t.Error("Expected broker to be healthy")
	}
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// Second close is a no-op.
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if b.Healthy(context.Background()) {
		t.Error("Expected closed broker to be unhealthy")
	}
}

func waitForProgress(t *testing.T, db *database.DB, id uuid.UUID, cond func(*models.RecordingProgress) bool) *models.RecordingProgress {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for {
		p, err := db.GetProgress(context.Background(), id)
		if err != nil {
			t.Fatalf("GetProgress failed: %v", err)
		}
		if cond(p) {
			return p
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress never reached the expected state, last %+v", p)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// staticSigner signs every key to the same URL.
type staticSigner string

func (s staticSigner) URL(string) (string, error) { return string(s), nil }

// TestIngestionEndToEnd submits one job, then publishes its results through
// the embedded broker and checks the stored progress after each step.
func TestIngestionEndToEnd(t *testing.T) {
	b, nc := startTestBroker(t)

	db, err := database.New(&config.DatabaseConfig{Path: database.InMemoryPath, MaxMemory: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	defer db.Close()

	dl, err := deadletter.Open(&config.DeadLetterConfig{InMemory: true})
	if err != nil {
		t.Fatalf("deadletter.Open failed: %v", err)
	}
	defer dl.Close()

	rec := &models.Recording{ID: uuid.New(), OriginalFilename: "call.wav", SourceKey: "original_upload/call"}
	if err := db.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecording failed: %v", err)
	}

	sub, err := b.NewIngestorSubscriber()
	if err != nil {
		t.Fatalf("NewIngestorSubscriber failed: %v", err)
	}
	defer sub.Close()

	ing, err := NewIngestor(sub, db, dl, IngestorConfigFrom(nc))
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Submission: the request envelope carries the signed download URL.
	requests, err := b.NewBridgeSubscriber(1)
	if err != nil {
		t.Fatalf("NewBridgeSubscriber failed: %v", err)
	}
	defer requests.Close()
	reqCh, err := requests.WatermillSubscriber().Subscribe(ctx, nc.RequestSubject)
	if err != nil {
		t.Fatalf("Subscribe to %s failed: %v", nc.RequestSubject, err)
	}

	submitter, err := NewSubmitter(b.Publisher(), staticSigner("https://x/a.wav"), nc.RequestSubject)
	if err != nil {
		t.Fatalf("NewSubmitter failed: %v", err)
	}
	if err := submitter.Submit(context.Background(), rec.Job()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case msg := <-reqCh:
		req, err := DecodeRequest(msg.Payload)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}
		if req.ID != rec.ID {
			t.Errorf("Expected request for %s, got %s", rec.ID, req.ID)
		}
		if req.Data.DownloadURL != "https://x/a.wav" {
			t.Errorf("Expected download_url https://x/a.wav, got %q", req.Data.DownloadURL)
		}
		if req.Data.TranscriptURL != nil {
			t.Errorf("Expected no transcript_url, got %q", *req.Data.TranscriptURL)
		}
		msg.Ack()
	case <-time.After(15 * time.Second):
		t.Fatal("request envelope never reached the request subject")
	}

	publish := func(payload models.ResponsePayload) {
		t.Helper()
		env := models.NewResponseEnvelope(rec.ID, payload)
		if err := b.Publisher().PublishResponse(context.Background(), nc.ResultSubject, &env); err != nil {
			t.Fatalf("PublishResponse failed: %v", err)
		}
	}

	forty, twenty := 40, 20
	publish(models.ProgressMsg{PercentDone: &forty})
	waitForProgress(t, db, rec.ID, func(p *models.RecordingProgress) bool { return p.Percent == 40 })

	publish(models.ProgressMsg{PercentDone: &twenty})
	publish(models.ChannelMetrics{
		Idx:      0,
		Metrics:  []models.MetricCollection{},
		Segments: []models.Segment{{Start: 0, End: 2.5, Text: "hello", Metrics: []models.MetricCollection{}}},
	})

	// Messages are applied in order, so once the channel exists the 20 has
	// already been seen and discarded.
	deadline := time.Now().Add(15 * time.Second)
	for {
		ids, err := db.ListChannelIDs(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("ListChannelIDs failed: %v", err)
		}
		if len(ids) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("channel was never stored")
		}
		time.Sleep(20 * time.Millisecond)
	}
	p := mustGetProgress(t, db, rec.ID)
	if p.Percent != 40 || p.Status != models.StatusRunning {
		t.Errorf("Expected running/40 after a stale update, got %s/%d", p.Status, p.Percent)
	}

	publish(models.RecordingMetrics{Metrics: []models.MetricCollection{{
		Provider: "whisper",
		Metrics:  []models.Metric{models.StringMetric("language", "en")},
	}}})
	p = waitForProgress(t, db, rec.ID, func(p *models.RecordingProgress) bool { return p.Status == models.StatusDone })
	if p.Percent != 100 {
		t.Errorf("Expected done/100, got %s/%d", p.Status, p.Percent)
	}

	if n, err := dl.Count(context.Background()); err != nil || n != 0 {
		t.Errorf("Expected an empty dead-letter store, got %d (%v)", n, err)
	}
}

func TestIngestionEndToEnd_UndecodableGoesToDeadLetter(t *testing.T) {
	b, nc := startTestBroker(t)

	dl, err := deadletter.Open(&config.DeadLetterConfig{InMemory: true})
	if err != nil {
		t.Fatalf("deadletter.Open failed: %v", err)
	}
	defer dl.Close()

	sub, err := b.NewIngestorSubscriber()
	if err != nil {
		t.Fatalf("NewIngestorSubscriber failed: %v", err)
	}
	defer sub.Close()

	ing, err := NewIngestor(sub, newFakeStore(), dl, IngestorConfigFrom(nc))
	if err != nil {
		t.Fatalf("NewIngestor failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	msg := newEnvelopeMessage("garbage", []byte(`{"id":"`+uuid.NewString()+`","data":{"_kind":"Telemetry"}}`))
	if err := b.Publisher().Publish(context.Background(), nc.ResultSubject, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	for {
		n, err := dl.Count(context.Background())
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("undecodable message never reached the dead-letter store")
		}
		time.Sleep(20 * time.Millisecond)
	}

	entries, err := dl.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if entries[0].Reason != deadletter.ReasonDecode || entries[0].Subject != nc.ResultSubject {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
}

func mustGetProgress(t *testing.T, db *database.DB, id uuid.UUID) *models.RecordingProgress {
	t.Helper()
	p, err := db.GetProgress(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	return p
}
