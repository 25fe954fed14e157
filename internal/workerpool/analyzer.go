// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package workerpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// PathPlaceholder in an analyzer argument is replaced with the command path.
const PathPlaceholder = "{path}"

// maxStderrTail bounds how much analyzer stderr ends up in an error.
const maxStderrTail = 2048

// Analyzer produces the raw analysis output for one recording.
type Analyzer interface {
	Analyze(ctx context.Context, path string) ([]byte, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, path string) ([]byte, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// CommandAnalyzer runs an external program per recording and returns its
// stdout, e.g. ["whisper-json", "--model", "small", "{path}"].
type CommandAnalyzer struct {
	args []string
}

// NewCommandAnalyzer creates an analyzer for the argument template args.
func NewCommandAnalyzer(args []string) (*CommandAnalyzer, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errors.New("analyzer command is empty")
	}
	return &CommandAnalyzer{args: append([]string(nil), args...)}, nil
}

// Analyze runs the program. It is killed when ctx ends.
func (a *CommandAnalyzer) Analyze(ctx context.Context, path string) ([]byte, error) {
	args := make([]string, len(a.args))
	for i, arg := range a.args {
		args[i] = strings.ReplaceAll(arg, PathPlaceholder, path)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Stop waiting on pipes held open by grandchildren after the kill.
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", args[0], ctxErr)
		}
		return nil, fmt.Errorf("%s: %w: %s", args[0], err, tail(stderr.Bytes(), maxStderrTail))
	}
	return stdout.Bytes(), nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
