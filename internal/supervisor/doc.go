// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package supervisor provides process supervision for Sonograph using suture v4.

The tree groups the long-running services into layers so a failure in one
layer restarts only that layer's services:

	RootSupervisor ("sonograph")
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── RunnerService ("result-ingestor")
	│   └── StageService ("analysis-stage", if workers are enabled)
	├── MessagingSupervisor ("messaging-layer")
	│   └── ProgressHubService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Supervisor events (starts, failures, restarts, backoff) are logged through
sutureslog into the process logger.

# Shutdown

Cancelling the context passed to Serve stops every service. Each gets
ShutdownTimeout to return; services that miss it are listed by
UnstoppedServiceReport. The analysis stage needs longer than the worker
pool's termination grace period, so the timeout is raised accordingly by
the server command.
*/
package supervisor
