// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool limits the number of goroutines used by the CPU kernels.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. Tasks that don't find a worker available are expected to run inline, on
// the calling goroutine, so a saturated pool never blocks.
type Pool struct {
	// maxParallelism is the limit of tasks running in separate goroutines. 0 disables parallelism.
	maxParallelism int
	mu             sync.Mutex
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.GOMAXPROCS(0)).
func New() *Pool {
	return &Pool{maxParallelism: runtime.GOMAXPROCS(0)}
}

// IsEnabled returns whether parallelism is enabled (maxParallelism > 0).
func (w *Pool) IsEnabled() bool {
	return w.MaxParallelism() > 0
}

// MaxParallelism is the limit of tasks running concurrently in separate goroutines.
// If 0 parallelism is disabled.
func (w *Pool) MaxParallelism() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism. Negative values are taken as 0.
//
// Tasks already running are not affected.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxParallelism = max(maxParallelism, 0)
}

// StartIfAvailable runs the task in a separate goroutine, if there are enough workers left.
// It returns true if it found workers to run the function, false otherwise.
//
// It's up to the client to synchronize the end of the function execution.
func (w *Pool) StartIfAvailable(task func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.numRunning >= w.maxParallelism {
		return false
	}
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.mu.Unlock()
		}()
		task()
	}()
	return true
}

// ParallelRange splits the range [0, n) into numChunks contiguous chunks and calls fn(start, end) for each of them.
// Chunks run on the available workers, or inline if none is available, and the last chunk always runs on
// the calling goroutine. It returns when all chunks are done.
func (w *Pool) ParallelRange(n, numChunks int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	numChunks = min(max(numChunks, 1), n)
	chunkSize := (n + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if end == n {
			fn(start, end)
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(start, end)
		}
		if !w.StartIfAvailable(task) {
			task()
		}
	}
	wg.Wait()
}
