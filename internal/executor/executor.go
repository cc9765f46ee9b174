// Package executor provides the schedulers backend work runs on: an
// unbounded executor for ad hoc calls and a fixed-size pool for batches.
package executor

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// Executor runs functions asynchronously.
type Executor interface {
	Go(f func())
}

// Unbounded starts one goroutine per call. Panics in tasks are re-raised
// by Wait.
type Unbounded struct {
	wg conc.WaitGroup
}

var _ Executor = (*Unbounded)(nil)

// NewUnbounded creates an Unbounded executor.
func NewUnbounded() *Unbounded {
	return &Unbounded{}
}

// Go runs f on a new goroutine.
func (u *Unbounded) Go(f func()) {
	u.wg.Go(f)
}

// Wait blocks until every started task returns.
func (u *Unbounded) Wait() {
	u.wg.Wait()
}

// DefaultPoolSize is max(NumCPU-1, 1).
func DefaultPoolSize() int {
	return max(runtime.NumCPU()-1, 1)
}

// Pool bounds concurrent batch work to a fixed number of workers shared by
// every caller.
type Pool struct {
	size int
	sem  chan struct{}
	wg   conc.WaitGroup
}

var _ Executor = (*Pool)(nil)

// NewPool creates a pool with size workers; size <= 0 uses DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	return &Pool{size: size, sem: make(chan struct{}, size)}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Go queues f; it runs once a worker slot is free.
func (p *Pool) Go(f func()) {
	p.wg.Go(func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		f()
	})
}

// Wait blocks until every task queued with Go returns.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// acquire takes a worker slot unless ctx ends first.
func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	<-p.sem
}

// Map applies fn to every item on p and returns results in input order.
// The first error cancels the remaining work and is returned.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	cp := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, item := range items {
		cp.Go(func(ctx context.Context) error {
			if err := p.acquire(ctx); err != nil {
				return err
			}
			defer p.release()

			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := cp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
