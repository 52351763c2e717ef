// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/gomlx/devbuf/pkg/engine/hostsim"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestNew(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()

	buf, err := New[float32](e, 16)
	require.NoError(t, err)
	assert.True(t, buf.IsValid())
	assert.Equal(t, 16, buf.Size())
	assert.Equal(t, dtypes.Float32, buf.DType())
	assert.Equal(t, engine.Engine(e), buf.Engine())
	assert.Equal(t, 16, buf.Data().Len())
	assert.Equal(t, "device.Buffer[float32](n=16, engine=go)", buf.String())

	stats := e.Stats()
	assert.Equal(t, 1, stats.LiveAllocations)
	assert.Equal(t, uint64(64), stats.LiveBytes)

	require.NoError(t, buf.Free())
	assert.False(t, buf.IsValid())
	assert.Equal(t, 0, e.Stats().LiveAllocations)
	assert.Equal(t, "device.Buffer[float32](invalid)", buf.String())
}

func TestNew_ZeroLength(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()
	buf, err := New[int64](e, 0)
	require.NoError(t, err)
	assert.True(t, buf.IsValid())
	assert.Equal(t, 0, buf.Size())
	assert.NotNil(t, buf.Data().Unsafe())
	assert.Empty(t, must.M1(buf.ToHost()))
	require.NoError(t, buf.Free())
}

func TestNew_Errors(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()

	_, err := New[float32](e, -1)
	assert.ErrorIs(t, err, engine.ErrInvalidLength)

	_, err = New[float32](nil, 1)
	assert.Error(t, err)

	small := must.M1(hostsim.NewWithConfig("capacity=1KiB"))
	defer small.Finalize()
	ok := MustNew[float64](small, 100)
	_, err = New[float64](small, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrOutOfMemory)
	require.NoError(t, ok.Free())
	second, err := New[float64](small, 100)
	require.NoError(t, err, "memory should be available again after Free")
	require.NoError(t, second.Free())

	assert.Panics(t, func() { _ = MustNew[float64](small, 1000) })
}

func TestNew_SizeOverflow(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()

	// The size in bytes doesn't fit an int.
	_, err := New[float32](e, 1<<62+1)
	assert.ErrorIs(t, err, engine.ErrOutOfMemory)
	_, err = New[float64](e, math.MaxInt/4)
	assert.ErrorIs(t, err, engine.ErrOutOfMemory)
	_, err = New[float16.Float16](e, math.MaxInt)
	assert.ErrorIs(t, err, engine.ErrOutOfMemory)

	// Fits an int, but not the host.
	_, err = New[uint8](e, math.MaxInt)
	assert.ErrorIs(t, err, engine.ErrOutOfMemory)

	stats := e.Stats()
	assert.Equal(t, 0, stats.LiveAllocations)
	assert.Equal(t, uint64(0), stats.TotalAllocations)
}

func TestFree_Twice(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()
	buf := MustNew[uint16](e, 8)
	require.NoError(t, buf.Free())
	err := buf.Free()
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyFreed)
	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.TotalFrees, "memory must be released exactly once")

	// Using a freed buffer is a bug.
	assert.Panics(t, func() { buf.Data() })
	assert.Panics(t, func() { buf.View() })
	assert.Panics(t, func() { buf.Move() })
	assert.ErrorIs(t, buf.CopyFromHost(make([]uint16, 8)), engine.ErrAlreadyFreed)
	_, err = buf.ToHost()
	assert.ErrorIs(t, err, engine.ErrAlreadyFreed)
	_, err = buf.Clone()
	assert.ErrorIs(t, err, engine.ErrAlreadyFreed)
}

func TestMove(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()
	values := []int32{1, 2, 3, 4}
	buf := must.M1(FromHost(e, values))
	moved := buf.Move()

	assert.False(t, buf.IsValid())
	assert.Equal(t, 0, buf.Size())
	assert.Panics(t, func() { buf.Data() })
	assert.NoError(t, buf.Free(), "Free on a moved-from buffer is a no-op")

	assert.True(t, moved.IsValid())
	assert.Equal(t, 4, moved.Size())
	assert.Equal(t, values, must.M1(moved.ToHost()))
	assert.Equal(t, 1, e.Stats().LiveAllocations)

	require.NoError(t, moved.Free())
	assert.Equal(t, 0, e.Stats().LiveAllocations)
	assert.Equal(t, uint64(1), e.Stats().TotalFrees)
}

func TestTransfers(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()
	values := []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-2), float16.Fromfloat32(1024)}
	buf := must.M1(FromHost(e, values))
	defer func() { require.NoError(t, buf.Free()) }()
	assert.Equal(t, values, must.M1(buf.ToHost()))

	dst := make([]float16.Float16, 3)
	require.NoError(t, buf.CopyToHost(dst))
	assert.Equal(t, values, dst)

	// Only whole-buffer transfers.
	assert.ErrorIs(t, buf.CopyFromHost(values[:2]), engine.ErrLengthMismatch)
	assert.ErrorIs(t, buf.CopyToHost(make([]float16.Float16, 4)), engine.ErrLengthMismatch)

	// The host copy is independent of the device contents.
	dst[0] = float16.Fromfloat32(7)
	assert.Equal(t, values, must.M1(buf.ToHost()))
}

func TestClone(t *testing.T) {
	e := must.M1(hostsim.NewWithConfig("parallelism=3,chunk=1"))
	defer e.Finalize()
	values := make([]uint32, 100)
	for i := range values {
		values[i] = uint32(i * i)
	}
	buf := must.M1(FromHost(e, values))
	defer func() { require.NoError(t, buf.Free()) }()
	clone := must.M1(buf.Clone())
	defer func() { require.NoError(t, clone.Free()) }()
	assert.Equal(t, values, must.M1(clone.ToHost()))

	// Independent storage.
	clone.Data().Store(0, 12345)
	assert.Equal(t, uint32(0), buf.View().Load(0))
}

func TestWith(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()

	var seen *Buffer[int8]
	err := With(e, 4, func(b *Buffer[int8]) error {
		seen = b
		b.Data().Store(3, -1)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, seen.IsValid())
	assert.Equal(t, 0, e.Stats().LiveAllocations)

	sentinel := errors.New("failed")
	err = With(e, 4, func(b *Buffer[int8]) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, e.Stats().LiveAllocations)

	assert.Panics(t, func() {
		_ = With(e, 4, func(b *Buffer[int8]) error { panic("boom") })
	})
	assert.Equal(t, 0, e.Stats().LiveAllocations)

	// Moving the buffer out of the scope hands it over to the new owner.
	var kept *Buffer[int8]
	require.NoError(t, With(e, 4, func(b *Buffer[int8]) error {
		kept = b.Move()
		return nil
	}))
	assert.True(t, kept.IsValid())
	assert.Equal(t, 1, e.Stats().LiveAllocations)
	require.NoError(t, kept.Free())

	// Free failing after a successful fn is reported.
	err = With(e, 4, func(b *Buffer[int8]) error { return b.Free() })
	assert.ErrorIs(t, err, engine.ErrAlreadyFreed)

	err = With(e, -1, func(b *Buffer[int8]) error { return nil })
	assert.ErrorIs(t, err, engine.ErrInvalidLength)
}

func TestPtr(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()
	buf := MustNew[float64](e, 3)
	defer func() { require.NoError(t, buf.Free()) }()
	data := buf.Data()
	for i := range data.Len() {
		data.Store(i, float64(i)+0.5)
	}
	view := data.Const()
	assert.Equal(t, 2.5, view.Load(2))
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, must.M1(buf.ToHost()))
	assert.Panics(t, func() { data.Load(3) })
	assert.Panics(t, func() { data.Store(-1, 0) })
	assert.Panics(t, func() { view.Load(3) })
}

func TestFree_AfterFinalize(t *testing.T) {
	e := hostsim.New()
	buf := MustNew[int32](e, 10)
	e.Finalize()
	assert.Equal(t, 0, e.Stats().LiveAllocations)

	_, err := buf.ToHost()
	assert.ErrorIs(t, err, engine.ErrEngineFinalized)

	// Finalize already released the memory, so the one Free the owner owes succeeds.
	require.NoError(t, buf.Free())
	assert.False(t, buf.IsValid())
	assert.ErrorIs(t, buf.Free(), engine.ErrAlreadyFreed)
	assert.Equal(t, uint64(1), e.Stats().TotalFrees)
}

// leak allocates a buffer and drops it without freeing.
func leak(e engine.Engine) {
	_ = MustNew[float32](e, 1024)
}

func TestLeakedBufferIsReleased(t *testing.T) {
	e := hostsim.New()
	defer e.Finalize()
	leak(e)
	require.Eventually(t, func() bool {
		runtime.GC()
		return e.Stats().LiveAllocations == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), e.Stats().TotalFrees)
}
