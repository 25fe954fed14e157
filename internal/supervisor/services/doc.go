// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package services provides suture.Service wrappers for Sonograph components.

Each wrapper translates a component lifecycle into suture's
Serve(ctx) error:

  - HTTPServerService: ListenAndServe and Shutdown of the API server
  - ProgressHubService: RunWithContext of the progress hub
  - StageService: Start, Done and Shutdown of the analysis stage, which owns
    the worker pool and the request router and is rebuilt on every restart
  - RunnerService: Run of the result ingestor

Every Serve returns ctx.Err() after a requested shutdown. Any other return
is a failure that the supervisor answers with a restart.

# Usage

	tree.AddPipelineService(services.NewRunnerService("result-ingestor", ingestor))
	tree.AddPipelineService(services.NewStageService("analysis-stage", stage, 15*time.Second))
	tree.AddMessagingService(services.NewProgressHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services
