// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/sonograph/internal/analysis"
	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/eventprocessor"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/workerpool"
)

// analysisStage owns the worker pool and the router that feeds it analysis
// requests. It implements services.StageRunner.
//
// A pool cannot be started twice, so every Start builds the pool, the
// bridge, the subscriber and the router from scratch.
type analysisStage struct {
	cfg    *config.Config
	broker *eventprocessor.Broker

	mu     sync.Mutex
	pool   *workerpool.Pool
	sub    *eventprocessor.Subscriber
	router *eventprocessor.Router
	done   chan struct{}
}

func newAnalysisStage(cfg *config.Config, broker *eventprocessor.Broker) *analysisStage {
	return &analysisStage{cfg: cfg, broker: broker}
}

// Start spawns the workers and runs the request router until ctx ends or
// Shutdown is called.
func (s *analysisStage) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.router != nil {
		return fmt.Errorf("analysis stage already running")
	}

	pool, err := workerpool.New(workerpool.ConfigFrom(&s.cfg.Workers))
	if err != nil {
		return err
	}
	// Start terminates whatever it spawned when it fails.
	if err := pool.Start(ctx); err != nil {
		return err
	}

	fetcher := analysis.NewHTTPFetcher(s.cfg.Workers.ScratchDir, s.cfg.Workers.FetchTimeout, s.cfg.Workers.MaxDownloadBytes)
	bridge, err := analysis.NewBridge(pool, fetcher, s.broker.Publisher(), s.cfg.NATS.ResultSubject)
	if err != nil {
		s.abort(pool, nil)
		return err
	}

	sub, err := s.broker.NewBridgeSubscriber(pool.Size())
	if err != nil {
		s.abort(pool, nil)
		return fmt.Errorf("create request subscriber: %w", err)
	}

	routerCfg := eventprocessor.RouterConfigFrom(&s.cfg.NATS)
	router, err := analysis.NewRouter(
		bridge,
		s.cfg.NATS.RequestSubject,
		sub.WatermillSubscriber(),
		s.broker.Publisher().WatermillPublisher(),
		&routerCfg,
		s.broker.Logger(),
	)
	if err != nil {
		s.abort(pool, sub)
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := router.Run(ctx); err != nil {
			logging.Error().Err(err).Msg("Analysis router stopped with error")
		}
	}()

	select {
	case <-router.Running():
	case <-done:
		s.abort(pool, sub)
		return errors.New("analysis router exited during startup")
	case <-ctx.Done():
		_ = router.Close()
		<-done
		s.abort(pool, sub)
		return fmt.Errorf("context canceled while starting analysis router: %w", ctx.Err())
	}

	s.pool, s.sub, s.router, s.done = pool, sub, router, done
	logging.Info().
		Int("workers", pool.Size()).
		Str("subject", s.cfg.NATS.RequestSubject).
		Msg("Analysis stage started")
	return nil
}

// Done is closed when the router stops. It is nil before Start.
func (s *analysisStage) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops the router first so in-flight requests are nacked, then
// terminates the workers. It is a no-op when the stage is not running.
func (s *analysisStage) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.router == nil {
		return nil
	}

	var errs []error
	if err := s.router.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close analysis router: %w", err))
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("analysis router did not stop: %w", ctx.Err()))
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shut down worker pool: %w", err))
	}
	if err := s.sub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close request subscriber: %w", err))
	}

	s.pool, s.sub, s.router, s.done = nil, nil, nil, nil
	logging.Info().Msg("Analysis stage stopped")
	return errors.Join(errs...)
}

func (s *analysisStage) abort(pool *workerpool.Pool, sub *eventprocessor.Subscriber) {
	if err := pool.Shutdown(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Error stopping worker pool after failed start")
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing request subscriber after failed start")
		}
	}
}
