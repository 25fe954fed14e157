// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sonograph/internal/api"
	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/database"
	"github.com/tomtom215/sonograph/internal/deadletter"
	"github.com/tomtom215/sonograph/internal/eventprocessor"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/storage"
	"github.com/tomtom215/sonograph/internal/supervisor"
	"github.com/tomtom215/sonograph/internal/supervisor/services"
	ws "github.com/tomtom215/sonograph/internal/websocket"
)

const (
	httpShutdownTimeout   = 10 * time.Second
	healthCheckTimeout    = 5 * time.Second
	brokerShutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the result ingestor and the analysis workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

//nolint:gocyclo // sequential setup steps
func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Sonograph with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeLogged("database", db.Close)

	deadLetters, err := deadletter.Open(&cfg.DeadLetter)
	if err != nil {
		return fmt.Errorf("open dead-letter store: %w", err)
	}
	defer closeLogged("dead-letter store", deadLetters.Close)

	broker, err := eventprocessor.StartBroker(ctx, &cfg.NATS)
	if err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), brokerShutdownTimeout)
		defer cancel()
		if err := broker.Close(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error closing broker")
		}
	}()

	blobs, err := storage.NewBlobStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	signer, err := storage.NewURLSigner(cfg.Security.SigningSecret, cfg.Server.PublicURL, cfg.Storage.URLTTL)
	if err != nil {
		return err
	}
	submitter, err := eventprocessor.NewSubmitter(broker.Publisher(), signer, cfg.NATS.RequestSubject)
	if err != nil {
		return err
	}

	hub := ws.NewHub()

	resultSub, err := broker.NewIngestorSubscriber()
	if err != nil {
		return fmt.Errorf("create result subscriber: %w", err)
	}
	defer closeLogged("result subscriber", resultSub.Close)

	ingestor, err := eventprocessor.NewIngestor(resultSub, db, deadLetters, eventprocessor.IngestorConfigFrom(&cfg.NATS))
	if err != nil {
		return err
	}
	ingestor.SetNotifier(hub)

	health := eventprocessor.NewHealthChecker(healthCheckTimeout)
	health.Register("database", eventprocessor.CheckFunc(db.Ping))
	health.Register("nats", broker)
	health.Register("deadletter", eventprocessor.CheckFunc(func(ctx context.Context) error {
		_, err := deadLetters.Count(ctx)
		return err
	}))

	handler, err := api.NewHandler(api.Dependencies{
		Store:          db,
		Blobs:          blobs,
		Signer:         signer,
		Submitter:      submitter,
		Hub:            hub,
		DeadLetters:    deadLetters,
		Health:         health,
		PublicURL:      cfg.Server.PublicURL,
		AllowedOrigins: cfg.Security.CORSOrigins,
	})
	if err != nil {
		return err
	}
	handler.SetStreamContext(ctx)

	// Uploads and media downloads have no deadline; the router bounds body
	// size.
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           api.NewRouter(handler, api.ChiMiddlewareConfigFrom(cfg)),
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	stageTimeout := analysisShutdownTimeout(cfg)
	treeCfg := supervisor.DefaultTreeConfig()
	if stageTimeout > treeCfg.ShutdownTimeout {
		treeCfg.ShutdownTimeout = stageTimeout + 5*time.Second
	}
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	tree.AddPipelineService(services.NewRunnerService("result-ingestor", ingestor))
	if cfg.Workers.Enabled {
		stage := newAnalysisStage(cfg, broker)
		tree.AddPipelineService(services.NewStageService("analysis-bridge", stage, stageTimeout))
		logging.Info().Int("workers", cfg.Workers.Size).Msg("Analysis stage added to supervisor tree")
	} else {
		logging.Info().Msg("Analysis workers disabled, requests are left for an external consumer")
	}

	tree.AddMessagingService(services.NewProgressHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, httpShutdownTimeout))

	// === START SUPERVISOR TREE ===

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
		stop()
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Sonograph stopped gracefully")
	return nil
}

// analysisShutdownTimeout covers draining the request router and the
// worker pool's SIGTERM grace period.
func analysisShutdownTimeout(c *config.Config) time.Duration {
	return c.NATS.RouterCloseTimeout + c.Workers.ReplyGrace + 5*time.Second
}

func closeLogged(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Error().Err(err).Str("component", name).Msg("Error closing component")
	}
}
