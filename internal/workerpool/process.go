// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package workerpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
)

// Termination protocol timings.
const (
	termPolls        = 10
	termPollInterval = 100 * time.Millisecond
	exitWriteTimeout = 100 * time.Millisecond

	// replyDrainTimeout bounds reading the replies an exited worker left
	// in its pipe.
	replyDrainTimeout = time.Second
)

// Termination methods reported by terminate.
const (
	TerminatedExit    = "exit"
	TerminatedSIGTERM = "sigterm"
	TerminatedSIGKILL = "sigkill"
)

// process is one running worker as seen from the pool.
type process struct {
	cmd     *exec.Cmd
	pid     int
	stdin   *os.File
	out     *lineWriter
	replies chan Reply

	// exited is closed once the process has been reaped.
	exited  chan struct{}
	waitErr error

	nextID   atomic.Uint64
	termOnce sync.Once
	termErr  error
}

// spawnProcess starts argv with a pipe pair for the protocol and waits for
// the ready message.
func spawnProcess(argv, env []string, startTimeout time.Duration) (*process, error) {
	toChildR, toChildW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create command pipe: %w", err)
	}
	fromChildR, fromChildW, err := os.Pipe()
	if err != nil {
		closeAll(toChildR, toChildW)
		return nil, fmt.Errorf("create reply pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = toChildR
	cmd.Stdout = fromChildW
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		closeAll(toChildR, toChildW, fromChildR, fromChildW)
		return nil, fmt.Errorf("start worker %s: %w", argv[0], err)
	}
	// The child holds its own copies of these ends.
	closeAll(toChildR, fromChildW)

	p := &process{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		stdin:   toChildW,
		out:     newLineWriter(toChildW),
		replies: make(chan Reply, 8),
		exited:  make(chan struct{}),
	}
	go p.readReplies(fromChildR)
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-p.replies:
			if !ok {
				_ = p.terminate(context.Background())
				return nil, fmt.Errorf("%w: pid %d closed its pipe before ready", ErrWorkerExited, p.pid)
			}
			if r.Kind == KindReady {
				return p, nil
			}
			logging.Warn().Int("worker_pid", p.pid).Str("kind", r.Kind).Msg("Unexpected message before ready")
		case <-p.exited:
			_ = p.terminate(context.Background())
			return nil, fmt.Errorf("%w: pid %d exited before ready: %v", ErrWorkerExited, p.pid, p.waitErr)
		case <-timer.C:
			_ = p.terminate(context.Background())
			return nil, fmt.Errorf("%w: pid %d not ready after %s", ErrStartTimeout, p.pid, startTimeout)
		}
	}
}

func (p *process) readReplies(r *os.File) {
	defer close(p.replies)
	defer r.Close()

	dec := json.NewDecoder(r)
	for {
		var reply Reply
		if err := dec.Decode(&reply); err != nil {
			if !isClosedPipe(err) {
				logging.Warn().Err(err).Int("worker_pid", p.pid).Msg("Undecodable worker reply, dropping pipe")
			}
			return
		}
		p.replies <- reply
	}
}

func (p *process) send(cmd Command) error {
	return p.out.write(cmd)
}

// terminate runs the termination protocol once: exit message, close the
// command pipe, SIGTERM, poll for exit, then SIGKILL. Concurrent callers
// wait for the first to finish. When ctx ends during polling, SIGKILL is
// sent right away.
func (p *process) terminate(ctx context.Context) error {
	p.termOnce.Do(func() {
		method := p.stop(ctx)
		metrics.RecordWorkerTermination(method)
		logging.Debug().Int("worker_pid", p.pid).Str("method", method).Msg("Worker terminated")
	})
	return p.termErr
}

func (p *process) stop(ctx context.Context) string {
	// Best effort: a worker stuck in analysis does not read its pipe.
	_ = p.stdin.SetWriteDeadline(time.Now().Add(exitWriteTimeout))
	_ = p.send(Command{Kind: KindExit})
	_ = p.stdin.Close()

	select {
	case <-p.exited:
		return TerminatedExit
	default:
	}

	if err := signalTerm(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logging.Debug().Err(err).Int("worker_pid", p.pid).Msg("SIGTERM failed")
	}

poll:
	for i := 0; i < termPolls; i++ {
		select {
		case <-p.exited:
			return TerminatedSIGTERM
		case <-ctx.Done():
			break poll
		case <-time.After(termPollInterval):
		}
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.termErr = fmt.Errorf("kill worker %d: %w", p.pid, err)
	}
	<-p.exited
	return TerminatedSIGKILL
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
