package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BoundedExecutor runs work with a fixed upper bound on how many tasks
// execute concurrently, backed by a weighted semaphore. It's the tool of
// choice whenever a fan-out (provider queries, gc sweeps) must not open more
// concurrent subprocesses or connections than the backing system can take.
type BoundedExecutor struct {
	sem *semaphore.Weighted
}

// NewBoundedExecutor creates an executor allowing at most maxConcurrency
// tasks to run at once. maxConcurrency <= 0 is treated as 1.
func NewBoundedExecutor(maxConcurrency int64) *BoundedExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &BoundedExecutor{sem: semaphore.NewWeighted(maxConcurrency)}
}

// Future is the handle returned by Submit; call Get to block for the
// result.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Get blocks until the submitted task completes and returns its result, or
// ctx is done (in which case ctx.Err() is returned).
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn to run as soon as a slot is free on e, returning a
// Future for its result. Go does not allow generic methods, so Submit is a
// free function parameterized over the executor's result type rather than a
// method on BoundedExecutor.
func Submit[T any](ctx context.Context, e *BoundedExecutor, fn func() (T, error)) *Future[T] {
	fut := &Future[T]{done: make(chan struct{})}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		fut.err = err
		close(fut.done)
		return fut
	}

	go func() {
		defer e.sem.Release(1)
		defer close(fut.done)
		fut.val, fut.err = fn()
	}()

	return fut
}

// SubmitAll submits every item in work through fn (bounded by e) and waits
// for all of them, returning results in the same order as work. A single
// slow/failed item does not block the others from starting.
func SubmitAll[I any, O any](ctx context.Context, e *BoundedExecutor, work []I, fn func(I) (O, error)) []Result[O] {
	futures := make([]*Future[O], len(work))
	for i, item := range work {
		item := item
		futures[i] = Submit(ctx, e, func() (O, error) { return fn(item) })
	}
	results := make([]Result[O], len(work))
	for i, fut := range futures {
		val, err := fut.Get(ctx)
		results[i] = Result[O]{Value: val, Err: err}
	}
	return results
}

// Result pairs a value with an error for batch-style APIs like SubmitAll,
// where partial failure is expected and every input's outcome is reported
// rather than aborting on the first error.
type Result[T any] struct {
	Value T
	Err   error
}
