// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package deadletter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/sonograph/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(&config.DeadLetterConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := &Entry{
		ID:       "msg-1",
		Subject:  "analysis.results",
		Reason:   ReasonDecode,
		Error:    "missing _kind",
		Attempts: 1,
		Payload:  []byte(`{"id":"x","data":{}}`),
		Metadata: map[string]string{"Nats-Msg-Id": "msg-1"},
	}
	if err := s.Save(ctx, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set on save")
	}

	got, err := s.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Reason != ReasonDecode || string(got.Payload) != `{"id":"x","data":{}}` {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.Metadata["Nats-Msg-Id"] != "msg-1" {
		t.Errorf("expected metadata to round-trip, got %v", got.Metadata)
	}

	if err := s.Delete(ctx, "msg-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "msg-1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "msg-1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound on second delete, got %v", err)
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), &Entry{Reason: ReasonDecode}); !errors.Is(err, ErrEmptyID) {
		t.Errorf("expected ErrEmptyID, got %v", err)
	}
}

func TestStore_ListOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	// Keys sort as c, b, a; creation order is a, b, c.
	for i, id := range []string{"c", "b", "a"} {
		err := s.Save(ctx, &Entry{ID: id, Reason: ReasonRetryBudget, CreatedAt: base.Add(time.Duration(2-i) * time.Minute)})
		if err != nil {
			t.Fatalf("Save(%s) failed: %v", id, err)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Fatalf("expected oldest first [a b c], got %v", ids(all))
	}

	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 2 || limited[1].ID != "b" {
		t.Errorf("expected [a b], got %v", ids(limited))
	}
}

func TestStore_CountAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := s.Save(ctx, &Entry{ID: id, Reason: ReasonDecode}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	// Same id replaces the entry.
	if err := s.Save(ctx, &Entry{ID: "3", Reason: ReasonRetryBudget}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}

	removed, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("expected empty store after purge, got %d", n)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	cfg := &config.DeadLetterConfig{Path: filepath.Join(t.TempDir(), "dlq")}
	ctx := context.Background()

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Save(ctx, &Entry{ID: "durable", Reason: ReasonDecode}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "durable"); err != nil {
		t.Errorf("expected entry after reopen, got %v", err)
	}
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(&config.DeadLetterConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}

	if err := s.Save(context.Background(), &Entry{ID: "x"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.List(context.Background(), 0); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(&config.DeadLetterConfig{}); err == nil {
		t.Error("expected an error without a path")
	}
}

func ids(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
