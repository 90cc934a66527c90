package sluice

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency sizes the default executor: one and a half workers per
// CPU, which suits the IO-bound profile of object listing and fetching.
func defaultConcurrency() int {
	n := runtime.NumCPU()
	return n + n/2
}

// -----------------------------------------------------------------------------
// Parallel Executor
// -----------------------------------------------------------------------------

// parallelExecutor implements Executor with a bounded errgroup.
type parallelExecutor struct {
	limit int
}

// NewParallelExecutor creates an executor that runs up to limit items at
// once. limit <= 0 selects the default of one and a half times NumCPU.
// Goroutines are spawned per Map call and torn down when it returns.
func NewParallelExecutor(limit int) Executor {
	if limit <= 0 {
		limit = defaultConcurrency()
	}
	return &parallelExecutor{limit: limit}
}

func (e *parallelExecutor) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

func (e *parallelExecutor) Concurrency() int {
	return e.limit
}

// -----------------------------------------------------------------------------
// Pool Executor
// -----------------------------------------------------------------------------

// PoolExecutor implements Executor over a reusable ants worker pool.
//
// Unlike NewParallelExecutor, the pool's workers persist across Map calls,
// which suits long analyst sessions issuing many queries. Call Release when
// the executor is no longer needed.
type PoolExecutor struct {
	pool *ants.Pool
}

// NewPoolExecutor creates a pool-backed executor with the given number of
// workers. size <= 0 selects the default of one and a half times NumCPU.
func NewPoolExecutor(size int) (*PoolExecutor, error) {
	if size <= 0 {
		size = defaultConcurrency()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("sluice: create worker pool: %w", err)
	}
	return &PoolExecutor{pool: pool}, nil
}

func (e *PoolExecutor) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	fail := func(err error) {
		mu.Lock()
		if first == nil {
			first = err
		}
		mu.Unlock()
		cancel()
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					fail(fmt.Errorf("sluice: task panic: %v", v))
				}
			}()
			if ctx.Err() != nil {
				return
			}
			if err := fn(ctx, i); err != nil {
				fail(err)
			}
		}
		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			fail(fmt.Errorf("sluice: submit task: %w", err))
			break
		}
	}

	wg.Wait()
	return first
}

func (e *PoolExecutor) Concurrency() int {
	return e.pool.Cap()
}

// Release tears down the pool's workers. The executor must not be used
// after Release.
func (e *PoolExecutor) Release() {
	e.pool.Release()
}
