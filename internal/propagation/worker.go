package propagation

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool runs indexed jobs on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Run calls fn(ctx, i) for every i in [0, n). Each call owns index i, so fn
// may write to slot i of a preallocated slice without locking. The first
// error cancels the remaining jobs and is returned; if ctx is cancelled
// first, ctx.Err() is returned.
func (wp *WorkerPool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	jobs := make(chan int, wp.workers*2)

	workers := min(wp.workers, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue // drain
				}
				if err := fn(ctx, i); err != nil {
					fail(err)
				}
			}
		}()
	}

	// Feed jobs until done or cancelled.
feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		wp.logger.Debug("worker pool stopped on error", "jobs", n, "error", firstErr)
		return firstErr
	}
	return ctx.Err()
}
