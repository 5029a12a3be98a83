package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreservesInputOrderRegardlessOfCompletionOrder(t *testing.T) {
	tasks := make([]Task, 10)
	for i := 0; i < 10; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			// Reverse-index sleep so later tasks finish first.
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return i * 2, nil
		}
	}

	results := Run(context.Background(), tasks, 4)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*2, r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var current, max int32
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				old := atomic.LoadInt32(&max)
				if n <= old || atomic.CompareAndSwapInt32(&max, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil, nil
		}
	}

	Run(context.Background(), tasks, 3)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&max)), 3)
}

func TestRunPropagatesPerTaskErrors(t *testing.T) {
	tasks := []Task{
		func(ctx context.Context) (interface{}, error) { return 1, nil },
		func(ctx context.Context) (interface{}, error) { return nil, fmt.Errorf("boom") },
	}

	results := Run(context.Background(), tasks, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestRunSkipsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task{
		func(ctx context.Context) (interface{}, error) { return 1, nil },
	}

	results := Run(ctx, tasks, 1)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestRunIndexedDefaultsConcurrency(t *testing.T) {
	results := RunIndexed(context.Background(), 5, 0, func(ctx context.Context, i int) (interface{}, error) {
		return i, nil
	})
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, i, r.Value)
	}
}
