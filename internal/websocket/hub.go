// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// ErrHubClosed is returned by Subscribe while the hub is not running.
var ErrHubClosed = errors.New("progress hub is closed")

// subIDCounter orders subscriptions for logging and tests.
var subIDCounter atomic.Uint64

// Subscription receives a wake-up whenever its recording changes. Wake-ups
// coalesce: a slow reader sees one pending signal, never a backlog.
type Subscription struct {
	id          uint64
	recordingID uuid.UUID
	wake        chan struct{}
	done        chan struct{}
}

// C is signalled after the recording's progress changed.
func (s *Subscription) C() <-chan struct{} {
	return s.wake
}

// Done is closed when the hub shuts down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Hub maps recordings to the progress streams watching them. It implements
// the ingestor's change notifier.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	count  int
	closed bool
}

// NewHub creates a Hub that accepts subscriptions immediately. Running it
// under a supervisor lets shutdown close every stream.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*Subscription]struct{})}
}

// Subscribe starts watching recordingID.
func (h *Hub) Subscribe(recordingID uuid.UUID) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	s := &Subscription{
		id:          subIDCounter.Add(1),
		recordingID: recordingID,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	set, ok := h.subs[recordingID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[recordingID] = set
	}
	set[s] = struct{}{}
	h.count++
	metrics.SetProgressStreams(h.count)
	return s, nil
}

// Unsubscribe stops s. It is safe to call more than once and after shutdown.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.recordingID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.recordingID)
	}
	h.count--
	metrics.SetProgressStreams(h.count)
}

// Notify wakes every stream watching recordingID. It never blocks, so the
// ingestor is not slowed down by clients.
func (h *Hub) Notify(recordingID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[recordingID] {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// GetClientCount returns the number of open subscriptions.
func (h *Hub) GetClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// RunWithContext accepts subscriptions until ctx is cancelled, then closes
// every open stream and returns ctx.Err(). A supervisor restart reopens it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()

	<-ctx.Done()

	clients := h.closeAll()
	logging.Info().
		Str("component", "progress-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clients).
		Msg("progress hub stopped")
	return ctx.Err()
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := h.count
	for _, set := range h.subs {
		for s := range set {
			close(s.done)
		}
	}
	h.subs = make(map[uuid.UUID]map[*Subscription]struct{})
	h.count = 0
	h.closed = true
	metrics.SetProgressStreams(0)
	return closed
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}
