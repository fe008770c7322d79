// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_StartIfAvailable(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(2)
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		require.True(t, pool.StartIfAvailable(func() {
			defer wg.Done()
			<-release
		}))
	}
	// Saturated.
	require.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	wg.Wait()

	// Workers are eventually released.
	require.Eventually(t, func() bool {
		done := make(chan struct{})
		if !pool.StartIfAvailable(func() { close(done) }) {
			return false
		}
		<-done
		return true
	}, time.Second, time.Millisecond)

	// No parallelism.
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())
	assert.False(t, pool.StartIfAvailable(func() {}))
	pool.SetMaxParallelism(-3)
	assert.Equal(t, 0, pool.MaxParallelism())
}

func TestPool_ParallelRange(t *testing.T) {
	for _, parallelism := range []int{0, 1, 4} {
		pool := New()
		pool.SetMaxParallelism(parallelism)
		for _, n := range []int{0, 1, 7, 100} {
			for _, numChunks := range []int{0, 1, 3, 8, 200} {
				counts := make([]atomic.Int32, n)
				var numCalls atomic.Int32
				pool.ParallelRange(n, numChunks, func(start, end int) {
					numCalls.Add(1)
					for ii := start; ii < end; ii++ {
						counts[ii].Add(1)
					}
				})
				for ii := range counts {
					require.Equal(t, int32(1), counts[ii].Load(),
						"parallelism=%d, n=%d, numChunks=%d, index=%d", parallelism, n, numChunks, ii)
				}
				if n > 0 {
					require.LessOrEqual(t, int(numCalls.Load()), max(numChunks, 1))
				}
			}
		}
	}
}
