// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package services

import (
	"context"
	"fmt"
)

// Runner blocks in Run until ctx is cancelled. *eventprocessor.Ingestor
// satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService supervises a Runner. A Run that returns while ctx is still
// live is a failure and the supervisor restarts it.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps runner under name.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (r *RunnerService) Serve(ctx context.Context) error {
	err := r.runner.Run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil {
		return fmt.Errorf("%s exited", r.name)
	}
	return fmt.Errorf("%s: %w", r.name, err)
}

// String implements fmt.Stringer.
func (r *RunnerService) String() string {
	return r.name
}
