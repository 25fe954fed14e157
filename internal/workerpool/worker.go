// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sonograph/internal/logging"
)

// Worker is the child side of the pool protocol. It reads commands from in,
// writes replies to out and handles one command at a time.
type Worker struct {
	in       io.Reader
	out      *lineWriter
	analyzer Analyzer
	timeout  time.Duration
}

// NewWorker creates a worker. timeout bounds a single analysis; <= 0 means
// no bound beyond the parent's.
func NewWorker(in io.Reader, out io.Writer, analyzer Analyzer, timeout time.Duration) *Worker {
	return &Worker{
		in:       in,
		out:      newLineWriter(out),
		analyzer: analyzer,
		timeout:  timeout,
	}
}

// Run announces readiness and serves commands. It returns nil on an exit
// command or when the parent closes the pipe, and ctx.Err() when ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.out.write(Reply{Kind: KindReady}); err != nil {
		if isClosedPipe(err) {
			return nil
		}
		return err
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	commands := make(chan Command)
	readErr := make(chan error, 1)
	go func() {
		dec := json.NewDecoder(w.in)
		for {
			var cmd Command
			if err := dec.Decode(&cmd); err != nil {
				readErr <- err
				return
			}
			select {
			case commands <- cmd:
			case <-readCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			if isClosedPipe(err) {
				logging.Debug().Msg("Command pipe closed, worker stopping")
				return nil
			}
			return fmt.Errorf("read command: %w", err)

		case cmd := <-commands:
			switch cmd.Kind {
			case KindExit:
				logging.Debug().Msg("Exit requested, worker stopping")
				return nil
			case KindTranscribe:
				if err := w.transcribe(ctx, cmd); err != nil {
					if isClosedPipe(err) {
						return nil
					}
					return err
				}
			default:
				err := w.out.write(Reply{Kind: KindError, ID: cmd.ID, Error: fmt.Sprintf("unknown command %q", cmd.Kind)})
				if err != nil && isClosedPipe(err) {
					return nil
				}
				if err != nil {
					return err
				}
			}
		}
	}
}

func (w *Worker) transcribe(ctx context.Context, cmd Command) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := w.analyzer.Analyze(ctx, cmd.Path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("analysis timed out after %s: %w", w.timeout, err)
		}
		logging.Warn().Err(err).Uint64("command_id", cmd.ID).Msg("Analysis failed")
		return w.out.write(Reply{Kind: KindError, ID: cmd.ID, Error: err.Error()})
	}

	logging.Debug().
		Uint64("command_id", cmd.ID).
		Dur("duration", time.Since(start)).
		Int("bytes", len(data)).
		Msg("Analysis finished")
	return w.out.write(Reply{Kind: KindResult, ID: cmd.ID, Data: string(data)})
}

func isClosedPipe(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}
