// Package astro owns the process-wide astrodynamics runtime: the gravity model
// every propagator is built with and the bounded set of computation slots that
// ephemeris generation acquires for the duration of a call.
//
// The runtime is explicit. Hosts call Init (or Start for an independent
// instance) before generating ephemerides and Close on shutdown. Nothing in
// this package runs at import time.
package astro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// ErrNotStarted is returned when a closed or nil runtime is used.
var ErrNotStarted = errors.New("astro runtime not started")

// Config holds runtime configuration.
type Config struct {
	Workers int     // Concurrent computation slots (default: runtime.NumCPU()).
	Gravity Gravity // SGP4 gravity constants (default: WGS-72).
}

// Runtime is a started astrodynamics runtime. Safe for concurrent use.
type Runtime struct {
	cfg    Config
	slots  chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	drained *sync.Cond
	closed  bool
	pending int // callers queued for or holding a slot
}

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
	defaultErr  error
)

// Init starts the process-wide runtime exactly once. Later calls return the
// runtime created by the first call and ignore their arguments.
func Init(cfg Config, logger *slog.Logger) (*Runtime, error) {
	defaultOnce.Do(func() {
		defaultRT, defaultErr = Start(cfg, logger)
	})
	return defaultRT, defaultErr
}

// Start creates an independent runtime. Most callers want Init.
func Start(cfg Config, logger *slog.Logger) (*Runtime, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Gravity == "" {
		cfg.Gravity = GravityWGS72
	}
	if _, err := ParseGravity(string(cfg.Gravity)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{
		cfg:    cfg,
		slots:  make(chan struct{}, cfg.Workers),
		logger: logger,
	}
	rt.drained = sync.NewCond(&rt.mu)
	logger.Info("astro runtime started",
		"workers", cfg.Workers,
		"gravity", string(cfg.Gravity),
		"mu_km3_s2", cfg.Gravity.Mu(),
	)
	return rt, nil
}

// Gravity returns the gravity model propagators are built with.
func (r *Runtime) Gravity() Gravity {
	return r.cfg.Gravity
}

// Workers returns the number of computation slots.
func (r *Runtime) Workers() int {
	return r.cfg.Workers
}

// Ready reports whether the runtime accepts new work.
func (r *Runtime) Ready() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// Acquire blocks until a computation slot is free or ctx is done. The returned
// release function must be called exactly once; it is safe to defer.
func (r *Runtime) Acquire(ctx context.Context) (release func(), err error) {
	if r == nil {
		return nil, ErrNotStarted
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrNotStarted
	}
	r.pending++
	r.mu.Unlock()

	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		r.done()
		return nil, fmt.Errorf("waiting for computation slot: %w", ctx.Err())
	}

	// Close may have run while we were queued.
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		<-r.slots
		r.done()
		return nil, ErrNotStarted
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-r.slots
			r.done()
		})
	}, nil
}

func (r *Runtime) done() {
	r.mu.Lock()
	r.pending--
	if r.pending == 0 {
		r.drained.Broadcast()
	}
	r.mu.Unlock()
}

// InFlight returns the number of slots currently held.
func (r *Runtime) InFlight() int {
	return len(r.slots)
}

// Close stops accepting work and waits for held slots to be released.
// Calling Close more than once is a no-op.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for r.pending > 0 {
		r.drained.Wait()
	}
	r.mu.Unlock()

	r.logger.Info("astro runtime stopped")
	return nil
}
