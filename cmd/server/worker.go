// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sonograph/internal/workerpool"
)

// workerCmd is the child side of the worker pool. stdout carries protocol
// replies only; logs go to stderr.
var workerCmd = &cobra.Command{
	Use:    workerpool.WorkerCommandName,
	Short:  "Serve analysis commands on stdin (started by the worker pool)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	analyzer, err := workerpool.NewCommandAnalyzer(cfg.Workers.Analyzer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = workerpool.NewWorker(os.Stdin, os.Stdout, analyzer, cfg.Workers.CommandTimeout).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
