// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunAll(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New()
		pool.SetMaxParallelism(parallelism)
		const numTasks = 100
		var seen [numTasks]atomic.Int32
		pool.RunAll(numTasks, func(i int) {
			seen[i].Add(1)
		})
		for i := range seen {
			assert.Equalf(t, int32(1), seen[i].Load(), "parallelism=%d, task %d", parallelism, i)
		}
		assert.Equal(t, 0, pool.NumRunning())
	}
}

func TestPool_RespectsMaxParallelism(t *testing.T) {
	pool := New()
	const maxParallelism = 2
	pool.SetMaxParallelism(maxParallelism)

	var running, peak atomic.Int32
	pool.RunAll(10, func(_ int) {
		current := running.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
	})
	assert.LessOrEqual(t, int(peak.Load()), maxParallelism)
	assert.Positive(t, int(peak.Load()))
}

func TestPool_Disabled(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())

	var order []int
	pool.RunAll(5, func(i int) { order = append(order, i) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	ran := false
	pool.WaitToStart(func() { ran = true })
	assert.True(t, ran, "WaitToStart should run inline when parallelism is disabled")
}

func TestPool_Unlimited(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(-1)
	assert.True(t, pool.IsUnlimited())
	var count atomic.Int32
	pool.RunAll(50, func(_ int) { count.Add(1) })
	assert.Equal(t, int32(50), count.Load())
}
