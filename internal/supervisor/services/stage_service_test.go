// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*StageService)(nil)

// mockStage simulates the analysis stage.
type mockStage struct {
	mu          sync.Mutex
	done        chan struct{}
	starts      atomic.Int32
	shutdowns   atomic.Int32
	startErr    error
	shutdownErr error
}

func (m *mockStage) Start(context.Context) error {
	m.starts.Add(1)
	if m.startErr != nil {
		return m.startErr
	}
	m.mu.Lock()
	m.done = make(chan struct{})
	m.mu.Unlock()
	return nil
}

func (m *mockStage) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	return m.shutdownErr
}

func (m *mockStage) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// crash makes the running stage stop by itself.
func (m *mockStage) crash() {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.done)
}

func serveAsync(ctx context.Context, svc suture.Service) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()
	return errCh
}

func TestStageService_ShutdownOnCancel(t *testing.T) {
	stage := &mockStage{}
	svc := NewStageService("analysis-stage", stage, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)

	require.Eventually(t, func() bool { return stage.starts.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("service did not stop in time")
	}
	assert.Equal(t, int32(1), stage.shutdowns.Load())
}

func TestStageService_StartError(t *testing.T) {
	startErr := errors.New("spawn analyzer: exec: not found")
	stage := &mockStage{startErr: startErr}
	svc := NewStageService("analysis-stage", stage, time.Second)

	err := svc.Serve(context.Background())
	assert.ErrorIs(t, err, startErr)
	assert.Zero(t, stage.shutdowns.Load(), "a stage that never started is not shut down")
}

func TestStageService_StoppedByItself(t *testing.T) {
	stage := &mockStage{}
	svc := NewStageService("analysis-stage", stage, time.Second)

	errCh := serveAsync(context.Background(), svc)
	require.Eventually(t, func() bool { return stage.starts.Load() == 1 }, time.Second, 10*time.Millisecond)
	stage.crash()

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "stopped unexpectedly")
	case <-time.After(time.Second):
		t.Fatal("service did not notice the stage stopping")
	}
	assert.Equal(t, int32(1), stage.shutdowns.Load())
}

func TestStageService_ShutdownError(t *testing.T) {
	shutdownErr := errors.New("worker 4242 did not exit")
	stage := &mockStage{shutdownErr: shutdownErr}
	svc := NewStageService("analysis-stage", stage, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)
	require.Eventually(t, func() bool { return stage.starts.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errCh, shutdownErr)
}

func TestStageService_RestartedBySupervisor(t *testing.T) {
	stage := &mockStage{}
	svc := NewStageService("analysis-stage", stage, time.Second)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	require.Eventually(t, func() bool { return stage.starts.Load() == 1 }, time.Second, 10*time.Millisecond)
	stage.crash()
	require.Eventually(t, func() bool { return stage.starts.Load() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	<-errCh
	assert.Equal(t, int32(2), stage.shutdowns.Load())
}

func TestNewStageService_DefaultTimeout(t *testing.T) {
	svc := NewStageService("analysis-stage", &mockStage{}, 0)
	assert.Equal(t, 10*time.Second, svc.shutdownTimeout)
	assert.Equal(t, "analysis-stage", svc.String())
}
