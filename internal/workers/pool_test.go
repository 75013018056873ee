package workers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll_ResultsInInputOrder(t *testing.T) {
	pool := NewPool(4)

	tasks := make([]Task, 20)
	for i := range tasks {
		id := fmt.Sprintf("task-%d", i)
		tasks[i] = Task{ID: id, Run: func() error { return nil }}
	}

	results := pool.RunAll(context.Background(), tasks)

	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("task-%d", i), r.ID)
		assert.NoError(t, r.Err)
	}
}

func TestRunAll_PanicIsIsolated(t *testing.T) {
	pool := NewPool(2)

	tasks := []Task{
		{ID: "ok-1", Run: func() error { return nil }},
		{ID: "boom", Run: func() error { panic("kaboom") }},
		{ID: "ok-2", Run: func() error { return nil }},
	}

	results := pool.RunAll(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "panic in task boom")
	assert.NoError(t, results[2].Err)
}

func TestRunAll_ErrorDoesNotBlockSiblings(t *testing.T) {
	pool := NewPool(2)
	var ran atomic.Int32

	tasks := []Task{
		{ID: "fail", Run: func() error { return errors.New("nope") }},
		{ID: "ok", Run: func() error { ran.Add(1); return nil }},
	}

	results := pool.RunAll(context.Background(), tasks)

	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, int32(1), ran.Load())
}

func TestRunAll_CancelledContextSkipsUnstartedTasks(t *testing.T) {
	pool := NewPool(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{ID: fmt.Sprintf("task-%d", i), Run: func() error {
			ran.Add(1)
			return nil
		}}
	}

	results := pool.RunAll(ctx, tasks)

	require.Len(t, results, 10)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Equal(t, int32(0), ran.Load())
}

func TestRunAll_InFlightTaskRunsToCompletion(t *testing.T) {
	pool := NewPool(1)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var finished atomic.Bool

	tasks := []Task{
		{ID: "slow", Run: func() error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return nil
		}},
	}

	go func() {
		<-started
		cancel()
	}()

	results := pool.RunAll(ctx, tasks)

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.True(t, finished.Load())
}

func TestRunAll_EmptyTaskList(t *testing.T) {
	pool := NewPool(4)
	results := pool.RunAll(context.Background(), nil)
	assert.Empty(t, results)
}

func TestNewPool_DefaultsToPositiveSize(t *testing.T) {
	assert.GreaterOrEqual(t, NewPool(0).Size(), 2)
	assert.Equal(t, 7, NewPool(7).Size())
}
