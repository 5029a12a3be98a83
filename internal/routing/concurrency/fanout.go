// Package concurrency provides a bounded-parallelism fan-out helper used
// to probe independent per-employee/per-candidate work (deviation checks,
// route probes) without overrunning the road service, while guaranteeing
// results come back in input order regardless of completion order. It is
// grounded on the teacher's worker-pool idiom (internal/common/jobs) —
// semaphore-bounded goroutines over a channel — simplified here to a
// single fan-out/fan-in call instead of a long-lived pool, since every
// batch of probes in this engine is one-shot and bounded by a single
// planning request.
package concurrency

import (
	"context"
	"sync"
)

// DefaultMaxInFlight is the default concurrency ceiling for fan-out calls
// that don't specify one (spec.md §5).
const DefaultMaxInFlight = 16

// Task is one unit of independent work producing a result or error.
type Task func(ctx context.Context) (interface{}, error)

// Result pairs a task's outcome with its original input index so callers
// can correlate it back to the input slice.
type Result struct {
	Index int
	Value interface{}
	Err   error
}

// Run executes tasks with at most maxInFlight running concurrently and
// returns results ordered by input index, not completion order. A
// maxInFlight <= 0 falls back to DefaultMaxInFlight. If ctx is cancelled,
// tasks not yet started are skipped and receive ctx.Err() as their result.
func Run(ctx context.Context, tasks []Task, maxInFlight int) []Result {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}

	results := make([]Result, len(tasks))
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	for i, task := range tasks {
		select {
		case <-ctx.Done():
			results[i] = Result{Index: i, Err: ctx.Err()}
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := task(ctx)
			results[i] = Result{Index: i, Value: value, Err: err}
		}(i, task)
	}

	wg.Wait()
	return results
}

// RunIndexed is a convenience wrapper for the common case where each task
// only needs its own index, e.g. building per-employee probes inline:
//
//	results := concurrency.RunIndexed(ctx, len(employees), maxInFlight, func(ctx context.Context, i int) (interface{}, error) {
//		return probe(ctx, employees[i])
//	})
func RunIndexed(ctx context.Context, n int, maxInFlight int, fn func(ctx context.Context, i int) (interface{}, error)) []Result {
	tasks := make([]Task, n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			return fn(ctx, i)
		}
	}
	return Run(ctx, tasks, maxInFlight)
}
