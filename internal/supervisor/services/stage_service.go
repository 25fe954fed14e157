// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package services

import (
	"context"
	"fmt"
	"time"
)

// StageRunner is a component with a Start/Shutdown lifecycle, such as the
// analysis stage that owns the worker pool and the request router.
//
// Start must not block. Done is closed when the stage stops on its own,
// for example because the router exited; a stopped stage is restarted by
// the supervisor through a fresh Start.
type StageRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Done() <-chan struct{}
}

// StageService adapts a StageRunner to suture's Serve.
type StageService struct {
	stage           StageRunner
	shutdownTimeout time.Duration
	name            string
}

// NewStageService wraps stage. shutdownTimeout bounds Shutdown and must
// cover the worker termination grace period.
func NewStageService(name string, stage StageRunner, shutdownTimeout time.Duration) *StageService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &StageService{
		stage:           stage,
		shutdownTimeout: shutdownTimeout,
		name:            name,
	}
}

// Serve implements suture.Service.
//
// A failed Start is returned so the supervisor restarts the stage with
// backoff. A stage that stops by itself is shut down and reported as a
// failure.
func (s *StageService) Serve(ctx context.Context) error {
	if err := s.stage.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	var stopped bool
	select {
	case <-ctx.Done():
	case <-s.stage.Done():
		stopped = true
	}

	// ctx may be cancelled already.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	shutdownErr := s.stage.Shutdown(shutdownCtx)

	switch {
	case stopped && ctx.Err() == nil:
		return fmt.Errorf("%s stopped unexpectedly", s.name)
	case shutdownErr != nil:
		return fmt.Errorf("%s shutdown: %w", s.name, shutdownErr)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *StageService) String() string {
	return s.name
}
