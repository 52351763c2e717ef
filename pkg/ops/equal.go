// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"runtime"

	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/devbuf/pkg/device"
	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/pkg/errors"
)

// absDiffAtLeast returns 1 if |a-b| >= eps, 0 otherwise.
// The difference is taken as larger minus smaller, so it doesn't wrap for unsigned types.
func absDiffAtLeast[T dtypes.Number](a, b, eps T) uint8 {
	var diff T
	if a < b {
		diff = b - a
	} else {
		diff = a - b
	}
	if diff >= eps {
		return 1
	}
	return 0
}

// flagMax is the combiner of the "too different" flags: max over {0, 1}, i.e. a logical or.
func flagMax(a, b uint8) uint8 {
	return max(a, b)
}

// Equal returns whether lhs and rhs have the same size and every pair of elements differs by
// strictly less than eps.
//
// Buffers of different sizes are not equal, and that is decided without any device work.
//
// Notice an element pair is flagged as different when |lhs[i]-rhs[i]| >= eps, so with eps == 0
// any non-empty pair of buffers is reported as not equal, even if identical. Differences that are
// NaN never flag, so NaN elements compare as equal.
//
// The buffers are only read. Both must belong to the same engine.
func Equal[T dtypes.Number](lhs, rhs *device.Buffer[T], eps T) (bool, error) {
	if lhs.Size() != rhs.Size() {
		return false, nil
	}
	e, err := sameEngine(lhs, rhs)
	if err != nil {
		return false, errors.WithMessage(err, "ops.Equal")
	}
	a, b := lhs.View(), rhs.View()
	flag, err := engine.Reduce(e, lhs.Size(), uint8(0), flagMax, func(i int) uint8 {
		return absDiffAtLeast(a.Load(i), b.Load(i), eps)
	})
	// The views don't keep the buffers alive: a leak cleanup must not release them mid-kernel.
	runtime.KeepAlive(lhs)
	runtime.KeepAlive(rhs)
	if err != nil {
		return false, errors.WithMessagef(err, "ops.Equal(%s, %s)", lhs, rhs)
	}
	return flag == 0, nil
}

// EqualHalf is Equal for the 16-bit float types: differences are computed in float32.
func EqualHalf[T dtypes.Half](lhs, rhs *device.Buffer[T], eps T) (bool, error) {
	if lhs.Size() != rhs.Size() {
		return false, nil
	}
	e, err := sameEngine(lhs, rhs)
	if err != nil {
		return false, errors.WithMessage(err, "ops.EqualHalf")
	}
	a, b := lhs.View(), rhs.View()
	eps32 := eps.Float32()
	flag, err := engine.Reduce(e, lhs.Size(), uint8(0), flagMax, func(i int) uint8 {
		return absDiffAtLeast(a.Load(i).Float32(), b.Load(i).Float32(), eps32)
	})
	runtime.KeepAlive(lhs)
	runtime.KeepAlive(rhs)
	if err != nil {
		return false, errors.WithMessagef(err, "ops.EqualHalf(%s, %s)", lhs, rhs)
	}
	return flag == 0, nil
}
