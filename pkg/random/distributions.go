// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package random

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"golang.org/x/exp/constraints"
)

// unit returns a draw mapped to [0, 1): (u - Min) / (Max - Min + 1).
func unit(src Source) float64 {
	span := float64(src.Max()-src.Min()) + 1
	return float64(src.Uint64()-src.Min()) / span
}

// UniformReal samples uniformly from [a, b).
type UniformReal[T constraints.Float] struct {
	A, B T
}

// NewUniformReal is the DistributionFactory for UniformReal.
func NewUniformReal[T constraints.Float](a, b T) Distribution[T] {
	return UniformReal[T]{A: a, B: b}
}

// Sample implements Distribution. It consumes one draw.
//
// The value is computed in float64 and rounded to T. If rounding lands on B (possible for float32),
// the next representable value below B is returned instead, so the result stays in [A, B).
// For A > B the result is A + u*(B-A), not validated.
func (d UniformReal[T]) Sample(src Source) T {
	u := unit(src)
	a, b := float64(d.A), float64(d.B)
	value := T(a + u*(b-a))
	if d.A < d.B && value >= d.B {
		value = nextBelow(d.B)
	}
	return value
}

// nextBelow returns the largest T smaller than x.
func nextBelow[T constraints.Float](x T) T {
	if unsafe.Sizeof(x) == 4 {
		return T(math.Nextafter32(float32(x), float32(math.Inf(-1))))
	}
	return T(math.Nextafter(float64(x), math.Inf(-1)))
}

// UniformInt samples uniformly from the closed range [a, b].
type UniformInt[T constraints.Integer] struct {
	A, B T
}

// NewUniformInt is the DistributionFactory for UniformInt.
func NewUniformInt[T constraints.Integer](a, b T) Distribution[T] {
	return UniformInt[T]{A: a, B: b}
}

// Sample implements Distribution.
//
// Ranges that fit in the source's range take one draw and are mapped exactly (multiply and divide
// in 128 bits). Wider ranges take two draws combined in float64, so only 53 bits of the range are
// reachable.
func (d UniformInt[T]) Sample(src Source) T {
	width := uint64(d.B) - uint64(d.A) + 1 // 0 means the full 64-bit range.
	srcWidth := src.Max() - src.Min() + 1   // 0 means the full 64-bit range.
	if srcWidth == 0 {
		x := src.Uint64()
		if width == 0 {
			return T(uint64(d.A) + x)
		}
		offset, _ := bits.Mul64(x, width)
		return T(uint64(d.A) + offset)
	}
	if width != 0 && width <= srcWidth {
		hi, lo := bits.Mul64(src.Uint64()-src.Min(), width)
		offset, _ := bits.Div64(hi, lo, srcWidth)
		return T(uint64(d.A) + offset)
	}
	first := float64(src.Uint64() - src.Min())
	u := (first + unit(src)) / float64(srcWidth)
	span := float64(width)
	if width == 0 {
		span = math.Exp2(64)
	}
	offset := uint64(min(u*span, math.Nextafter(span, 0)))
	return T(uint64(d.A) + offset)
}

// Normal samples from a normal distribution with mean A and standard deviation B.
type Normal[T constraints.Float] struct {
	Mean, StdDev T
}

// NewNormal is the DistributionFactory for Normal: a is the mean, b the standard deviation.
func NewNormal[T constraints.Float](a, b T) Distribution[T] {
	return Normal[T]{Mean: a, StdDev: b}
}

// Sample implements Distribution. It consumes two draws (Box-Muller, cosine branch only).
func (d Normal[T]) Sample(src Source) T {
	u1 := 1 - unit(src) // (0, 1], so the log is finite.
	u2 := unit(src)
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return T(float64(d.Mean) + z*float64(d.StdDev))
}

// UniformHalf samples uniformly from [a, b) for the 16-bit float types.
//
// Bounds are given as float32. Values are rounded to T and, when rounding crosses a bound, moved to
// the nearest representable value inside [a, b).
type UniformHalf[T dtypes.Half] struct {
	A, B float32
}

// NewUniformHalf is the DistributionFactory for UniformHalf.
func NewUniformHalf[T dtypes.Half](a, b T) Distribution[T] {
	return UniformHalf[T]{A: a.Float32(), B: b.Float32()}
}

// Sample implements Distribution. It consumes one draw.
func (d UniformHalf[T]) Sample(src Source) T {
	value := UniformReal[float32]{A: d.A, B: d.B}.Sample(src)
	h := dtypes.HalfFromFloat32[T](value)
	if d.A < d.B {
		if h.Float32() >= d.B {
			h = stepHalf(h, false)
		} else if h.Float32() < d.A {
			h = stepHalf(h, true)
		}
	}
	return h
}

// stepHalf returns the next representable 16-bit float after h, upwards or downwards.
// Both half formats are sign-magnitude, so stepping is an increment or decrement of the magnitude.
func stepHalf[T dtypes.Half](h T, up bool) T {
	const signBit = 0x8000
	negative := h&signBit != 0
	magnitude := h &^ signBit
	switch {
	case magnitude == 0 && up:
		return 0x0001
	case magnitude == 0:
		return signBit | 0x0001
	case negative == up:
		return h - 1
	default:
		return h + 1
	}
}
