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
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
)

// WorkerCommandName is the hidden CLI command that runs a worker when the
// pool re-executes its own binary.
const WorkerCommandName = "_worker"

var (
	// ErrPoolClosed is returned after Shutdown.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolStarted is returned by a second Start.
	ErrPoolStarted = errors.New("worker pool already started")

	// ErrWorkerExited is returned when a worker dies before replying.
	ErrWorkerExited = errors.New("worker exited")

	// ErrCommandTimeout is returned when a worker does not reply within
	// CommandTimeout plus ReplyGrace.
	ErrCommandTimeout = errors.New("worker command timed out")

	// ErrStartTimeout is returned when a worker does not announce readiness.
	ErrStartTimeout = errors.New("worker start timed out")
)

// CommandError is an error reported by the worker itself, e.g. a failed
// analysis. The worker stays in the pool.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return "worker: " + e.Message
}

// Config holds pool settings.
type Config struct {
	Size int

	// Command is the worker argv. Empty re-executes the current binary
	// with WorkerCommandName.
	Command []string

	// Env is appended to the inherited environment of every worker.
	Env []string

	CommandTimeout time.Duration
	ReplyGrace     time.Duration
	StartTimeout   time.Duration

	// RespawnInterval is the steady-state spacing of replacement workers
	// once Size replacements happened back to back.
	RespawnInterval time.Duration
}

// ConfigFrom maps application settings onto the pool.
func ConfigFrom(cfg *config.WorkersConfig) Config {
	return Config{
		Size:           cfg.Size,
		Command:        append([]string(nil), cfg.Command...),
		CommandTimeout: cfg.CommandTimeout,
		ReplyGrace:     cfg.ReplyGrace,
		StartTimeout:   cfg.StartTimeout,
	}
}

// Pool supervises a fixed number of worker processes. Each worker has at
// most one command outstanding. The pool owns the registry of live
// processes; nothing outside it tracks worker pids.
type Pool struct {
	config Config
	argv   []string

	mu       sync.Mutex
	registry map[int]*process
	started  bool
	closed   bool

	// idle holds workers ready for a command. A worker is in it at most once.
	idle chan *process
	done chan struct{}

	respawnLimit *rate.Limiter
	respawns     sync.WaitGroup
	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg and creates a pool. No process is started until Start.
func New(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("worker pool size must be at least 1, got %d", cfg.Size)
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Minute
	}
	if cfg.ReplyGrace < 0 {
		cfg.ReplyGrace = 0
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 10 * time.Second
	}
	if cfg.RespawnInterval <= 0 {
		cfg.RespawnInterval = time.Second
	}

	argv := cfg.Command
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker executable: %w", err)
		}
		argv = []string{exe, WorkerCommandName}
	}

	return &Pool{
		config:   cfg,
		argv:     argv,
		registry: make(map[int]*process, cfg.Size),
		idle:     make(chan *process, cfg.Size),
		done:     make(chan struct{}),

		respawnLimit: rate.NewLimiter(rate.Every(cfg.RespawnInterval), cfg.Size),
	}, nil
}

// Size returns the configured number of workers.
func (p *Pool) Size() int {
	return p.config.Size
}

// Start spawns all workers concurrently. If any of them fails to become
// ready, every worker already started is terminated.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrPoolClosed
	case p.started:
		p.mu.Unlock()
		return ErrPoolStarted
	}
	p.started = true
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.Size; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w, err := p.spawn()
			if err != nil {
				return err
			}
			p.release(w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = p.Shutdown(context.Background())
		return fmt.Errorf("start worker pool: %w", err)
	}

	logging.Info().
		Int("workers", p.config.Size).
		Ints("pids", p.Pids()).
		Msg("Worker pool started")
	return nil
}

// spawn starts one worker and registers it. A worker that becomes ready
// after Shutdown began is terminated instead.
func (p *Pool) spawn() (*process, error) {
	w, err := spawnProcess(p.argv, p.config.Env, p.config.StartTimeout)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = w.terminate(context.Background())
		return nil, ErrPoolClosed
	}
	p.registry[w.pid] = w
	metrics.SetLiveWorkers(len(p.registry))
	p.mu.Unlock()

	logging.Debug().Int("worker_pid", w.pid).Msg("Worker ready")
	return w, nil
}

func (p *Pool) unregister(w *process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.registry, w.pid)
	metrics.SetLiveWorkers(len(p.registry))
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Live returns the number of registered worker processes.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registry)
}

// Pids returns the pids of registered workers in ascending order.
func (p *Pool) Pids() []int {
	p.mu.Lock()
	pids := make([]int, 0, len(p.registry))
	for pid := range p.registry {
		pids = append(pids, pid)
	}
	p.mu.Unlock()
	sort.Ints(pids)
	return pids
}

func (p *Pool) acquire(ctx context.Context) (*process, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case w := <-p.idle:
		return w, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(w *process) {
	if p.isClosed() {
		return
	}
	p.idle <- w
}

// Dispatch sends path to an idle worker and waits for its reply. A worker
// that times out, exits, or is abandoned through ctx is terminated and
// replaced; a worker that replied goes back to the idle queue. A worker
// found dead before it accepted the command is replaced and the command
// goes to the next idle one.
func (p *Pool) Dispatch(ctx context.Context, path string) ([]byte, error) {
	w, id, start, err := p.deliver(ctx, path)
	if err != nil {
		return nil, err
	}
	log := logging.Ctx(ctx).With().Int("worker_pid", w.pid).Uint64("command_id", id).Logger()
	log.Debug().Msg("Command sent to worker")

	timer := time.NewTimer(p.config.CommandTimeout + p.config.ReplyGrace)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-w.replies:
			if !ok {
				metrics.RecordWorkerCommand("exited", time.Since(start))
				p.replace(w, "reply pipe closed")
				return nil, p.closedOr(ErrWorkerExited)
			}
			if !answers(r, id) {
				log.Debug().Str("kind", r.Kind).Uint64("reply_id", r.ID).Msg("Dropping stale worker reply")
				continue
			}
			p.release(w)
			return replyResult(r, start)

		case <-w.exited:
			// The reply may still be buffered in the pipe.
			r, ok := drainReply(w, id)
			p.replace(w, "worker exited")
			if ok {
				return replyResult(r, start)
			}
			metrics.RecordWorkerCommand("exited", time.Since(start))
			return nil, p.closedOr(ErrWorkerExited)

		case <-timer.C:
			metrics.RecordWorkerCommand("timeout", time.Since(start))
			log.Warn().
				Dur("timeout", p.config.CommandTimeout+p.config.ReplyGrace).
				Msg("Worker did not reply in time")
			p.replace(w, "command timeout")
			return nil, ErrCommandTimeout

		case <-ctx.Done():
			metrics.RecordWorkerCommand("cancelled", time.Since(start))
			p.replace(w, "dispatch cancelled")
			return nil, ctx.Err()
		}
	}
}

// deliver hands the command to an idle worker. Workers that died while
// idle are replaced and skipped; after Size+1 of them in a row it gives up.
func (p *Pool) deliver(ctx context.Context, path string) (*process, uint64, time.Time, error) {
	var lastErr error
	for tries := 0; tries <= p.config.Size; tries++ {
		w, err := p.acquire(ctx)
		if err != nil {
			return nil, 0, time.Time{}, err
		}

		select {
		case <-w.exited:
			p.replace(w, "exited while idle")
			lastErr = fmt.Errorf("pid %d exited while idle", w.pid)
			continue
		default:
		}

		id := w.nextID.Add(1)
		start := time.Now()
		if err := w.send(Command{Kind: KindTranscribe, ID: id, Path: path}); err != nil {
			p.replace(w, "command pipe broken")
			lastErr = err
			continue
		}
		return w, id, start, nil
	}
	metrics.RecordWorkerCommand("exited", 0)
	return nil, 0, time.Time{}, fmt.Errorf("%w: %w", p.closedOr(ErrWorkerExited), lastErr)
}

// drainReply reads what is left on the reply pipe of an exited worker and
// returns the reply to command id, if the worker wrote one.
func drainReply(w *process, id uint64) (Reply, bool) {
	timer := time.NewTimer(replyDrainTimeout)
	defer timer.Stop()
	for {
		select {
		case r, ok := <-w.replies:
			if !ok {
				return Reply{}, false
			}
			if answers(r, id) {
				return r, true
			}
		case <-timer.C:
			return Reply{}, false
		}
	}
}

func answers(r Reply, id uint64) bool {
	return r.ID == id && (r.Kind == KindResult || r.Kind == KindError)
}

func replyResult(r Reply, start time.Time) ([]byte, error) {
	if r.Kind == KindError {
		metrics.RecordWorkerCommand("error", time.Since(start))
		return nil, &CommandError{Message: r.Error}
	}
	metrics.RecordWorkerCommand("success", time.Since(start))
	return []byte(r.Data), nil
}

func (p *Pool) closedOr(err error) error {
	if p.isClosed() {
		return ErrPoolClosed
	}
	return err
}

// replace terminates w and starts a successor in the background. A
// recording that crashes every worker it reaches is throttled by
// respawnLimit. Spawn failures are retried with backoff until the pool
// closes.
func (p *Pool) replace(w *process, reason string) {
	// Terminate before unregistering so Shutdown still sees the worker and
	// waits for it.
	_ = w.terminate(context.Background())
	p.unregister(w)

	// Add under mu so Shutdown's Wait cannot miss this goroutine.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.respawns.Add(1)
	p.mu.Unlock()
	logging.Warn().Int("worker_pid", w.pid).Str("reason", reason).Msg("Replacing worker")

	go func() {
		defer p.respawns.Done()

		if delay := p.respawnLimit.Reserve().Delay(); delay > 0 {
			logging.Warn().Dur("delay", delay).Msg("Worker respawns throttled")
			select {
			case <-p.done:
				return
			case <-time.After(delay):
			}
		}

		backoff := 100 * time.Millisecond
		for {
			nw, err := p.spawn()
			if err == nil {
				p.release(nw)
				return
			}
			if errors.Is(err, ErrPoolClosed) {
				return
			}
			logging.Error().Err(err).Dur("retry_in", backoff).Msg("Failed to start replacement worker")

			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
		}
	}()
}

// Shutdown terminates every worker concurrently and waits for all of them
// to be reaped. Only the first call does anything. After it returns Live
// is zero.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		workers := make([]*process, 0, len(p.registry))
		for _, w := range p.registry {
			workers = append(workers, w)
		}
		p.mu.Unlock()
		close(p.done)

		var (
			g    errgroup.Group
			mu   sync.Mutex
			errs []error
		)
		for _, w := range workers {
			g.Go(func() error {
				if err := w.terminate(ctx); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				p.unregister(w)
				return nil
			})
		}
		_ = g.Wait()

		// A replacement that became ready meanwhile terminates itself in
		// spawn; wait for those goroutines too.
		p.respawns.Wait()

		p.shutdownErr = errors.Join(errs...)
		logging.Info().Int("workers", len(workers)).Msg("Worker pool stopped")
	})
	return p.shutdownErr
}
