// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func signalled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func TestHub_NotifyWakesOnlyMatchingRecording(t *testing.T) {
	hub := NewHub()
	a, b := uuid.New(), uuid.New()

	subA, err := hub.Subscribe(a)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	subB, err := hub.Subscribe(b)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	hub.Notify(a)

	if !signalled(subA.C()) {
		t.Error("Expected subscriber for a to be woken")
	}
	if signalled(subB.C()) {
		t.Error("Expected subscriber for b to stay asleep")
	}
	if got := hub.GetClientCount(); got != 2 {
		t.Errorf("Expected 2 clients, got %d", got)
	}
}

func TestHub_NotifyCoalesces(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	sub, _ := hub.Subscribe(id)

	for i := 0; i < 10; i++ {
		hub.Notify(id)
	}

	if !signalled(sub.C()) {
		t.Fatal("Expected one pending wake-up")
	}
	if signalled(sub.C()) {
		t.Error("Expected wake-ups to coalesce into one")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	sub, _ := hub.Subscribe(id)

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Notify(id)

	if signalled(sub.C()) {
		t.Error("Expected no wake-up after unsubscribe")
	}
	if got := hub.GetClientCount(); got != 0 {
		t.Errorf("Expected 0 clients, got %d", got)
	}
}

func TestHub_RunWithContextClosesStreams(t *testing.T) {
	hub := NewHub()
	sub, _ := hub.Subscribe(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	select {
	case <-sub.Done():
	default:
		t.Error("Expected subscription to be closed on shutdown")
	}
	if _, err := hub.Subscribe(uuid.New()); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Expected ErrHubClosed after shutdown, got %v", err)
	}

	// A supervisor restart reopens the hub.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go func() { _ = hub.RunWithContext(ctx2) }()
	deadline := time.Now().Add(time.Second)
	for {
		if _, err := hub.Subscribe(uuid.New()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hub did not reopen after restart")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetShutdownReason(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("Expected %s, got %s", ShutdownReasonContextDeadline, got)
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	if got := getShutdownReason(ctx2); got != ShutdownReasonContextCanceled {
		t.Errorf("Expected %s, got %s", ShutdownReasonContextCanceled, got)
	}
}
