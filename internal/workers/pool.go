// Package workers provides a bounded worker pool for fan-out over
// independent units of work with per-unit fault isolation.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Task is one independent unit of work.
type Task struct {
	ID  string
	Run func() error
}

// Result is the outcome of one task.
type Result struct {
	ID  string
	Err error
}

// Pool distributes tasks across a fixed number of worker goroutines.
// Units already started are never interrupted; cancellation only stops
// pending units from being picked up.
type Pool struct {
	numWorkers int
}

// NewPool creates a pool with the given worker count. A non-positive
// count defaults to the available CPU parallelism, floor 2.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
		if numWorkers < 2 {
			numWorkers = 2
		}
	}
	return &Pool{numWorkers: numWorkers}
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.numWorkers
}

// RunAll executes every task and returns one result per task, in input
// order. A panicking task is converted into an error result; it never
// takes down sibling units. When ctx is cancelled or its deadline passes,
// tasks not yet started are reported as failed with ctx's error while
// in-flight tasks run to completion.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []Result {
	numTasks := len(tasks)
	if numTasks == 0 {
		return []Result{}
	}

	jobs := make(chan int, numTasks)
	results := make(chan indexedResult, numTasks)

	numWorkers := p.numWorkers
	if numTasks < numWorkers {
		numWorkers = numTasks
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, tasks, jobs, results)
		}()
	}

	for idx := range tasks {
		jobs <- idx
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, numTasks)
	for r := range results {
		out[r.index] = r.result
	}

	return out
}

type indexedResult struct {
	index  int
	result Result
}

func worker(ctx context.Context, tasks []Task, jobs <-chan int, results chan<- indexedResult) {
	for idx := range jobs {
		task := tasks[idx]

		select {
		case <-ctx.Done():
			results <- indexedResult{
				index:  idx,
				result: Result{ID: task.ID, Err: ctx.Err()},
			}
			continue
		default:
		}

		results <- indexedResult{
			index:  idx,
			result: Result{ID: task.ID, Err: runTask(task)},
		}
	}
}

// runTask executes one task, converting a panic into an error.
func runTask(task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in task %s: %v", task.ID, p)
		}
	}()

	return task.Run()
}
