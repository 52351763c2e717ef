// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"sync/atomic"
	"testing"

	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/gomlx/devbuf/pkg/engine/hostsim"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Contains(t, engine.List(), hostsim.EngineName)

	for _, config := range []string{"", "go", "go:", "go:parallelism=2"} {
		e, err := engine.NewWithConfig(config)
		require.NoErrorf(t, err, "config=%q", config)
		assert.Equal(t, "go", e.Name())
		e.Finalize()
	}

	e := must.M1(engine.NewWithConfig("go:parallelism=2,capacity=1MiB"))
	defer e.Finalize()
	assert.Equal(t, 2, e.(*hostsim.Engine).Parallelism())
	assert.Equal(t, uint64(1<<20), e.Stats().Capacity)

	_, err := engine.NewWithConfig("cuda:0")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)

	_, err = engine.NewWithConfig("go:parallelism=lots")
	assert.Error(t, err)
}

func TestNew_Environment(t *testing.T) {
	t.Setenv(engine.DEVBUF_ENGINE, "go:parallelism=0")
	e := must.M1(engine.New())
	defer e.Finalize()
	assert.Equal(t, 0, e.(*hostsim.Engine).Parallelism())

	t.Setenv(engine.DEVBUF_ENGINE, "tpu")
	_, err := engine.New()
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)
	assert.Panics(t, func() { engine.MustNew() })
}

func TestReduce(t *testing.T) {
	for _, config := range []string{"parallelism=0", "parallelism=4,chunk=1", "parallelism=-1,chunk=3"} {
		e := must.M1(hostsim.NewWithConfig(config))
		const n = 1000
		sum, err := engine.Reduce(e, n, 0, func(a, b int) int { return a + b }, func(i int) int { return i })
		require.NoError(t, err)
		assert.Equalf(t, n*(n-1)/2, sum, "config=%q", config)

		maxValue, err := engine.Reduce(e, n, -1, func(a, b int) int { return max(a, b) }, func(i int) int { return (i * 37) % n })
		require.NoError(t, err)
		assert.Equal(t, n-1, maxValue)

		// init is combined exactly once.
		sum, err = engine.Reduce(e, n, 10, func(a, b int) int { return a + b }, func(i int) int { return 1 })
		require.NoError(t, err)
		assert.Equal(t, n+10, sum)

		// Empty range returns init.
		empty, err := engine.Reduce(e, 0, 7, func(a, b int) int { return a + b }, func(i int) int { return 1 })
		require.NoError(t, err)
		assert.Equal(t, 7, empty)
		e.Finalize()
	}

	e := hostsim.New()
	_, err := engine.Reduce(e, -1, 0, func(a, b int) int { return a + b }, func(i int) int { return i })
	assert.ErrorIs(t, err, engine.ErrInvalidLength)
	_, err = engine.Reduce[int](nil, 1, 0, func(a, b int) int { return a + b }, func(i int) int { return i })
	assert.Error(t, err)
	e.Finalize()
	_, err = engine.Reduce(e, 10, 0, func(a, b int) int { return a + b }, func(i int) int { return i })
	assert.ErrorIs(t, err, engine.ErrEngineFinalized)
}

func TestTabulate(t *testing.T) {
	for _, config := range []string{"parallelism=0", "parallelism=4,chunk=1", "parallelism=-1"} {
		e := must.M1(hostsim.NewWithConfig(config))
		const n = 777
		var visits [n]atomic.Int32
		require.NoError(t, engine.Tabulate(e, n, func(i int) { visits[i].Add(1) }))
		for i := range visits {
			require.Equalf(t, int32(1), visits[i].Load(), "config=%q, index %d", config, i)
		}
		require.NoError(t, engine.Tabulate(e, 0, func(i int) { t.Fatal("no index expected") }))
		e.Finalize()
	}
}

func TestTabulate_KernelPanic(t *testing.T) {
	e := must.M1(hostsim.NewWithConfig("parallelism=2,chunk=1"))
	defer e.Finalize()
	err := engine.Tabulate(e, 10, func(i int) {
		if i == 5 {
			panic("index 5 is cursed")
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrKernelFailed)
	assert.Contains(t, err.Error(), "index 5 is cursed")
}

func TestStats_String(t *testing.T) {
	s := engine.Stats{LiveAllocations: 2, LiveBytes: 2048, PeakBytes: 4096, TotalAllocations: 3, TotalFrees: 1}
	assert.Equal(t, "live=2 (2.0 KiB), peak=4.0 KiB, capacity=unlimited, allocations=3, frees=1, launches=0", s.String())
}
