// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"unsafe"

	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
)

// Ptr is a non-owning, mutable handle to the elements of a Buffer, to be used inside kernels.
//
// It is a plain value: copying it doesn't copy the elements, and it becomes dangling once the
// buffer is freed.
type Ptr[T dtypes.Supported] struct {
	base unsafe.Pointer
	n    int
}

// Len returns the number of elements addressed.
func (p Ptr[T]) Len() int { return p.n }

// Load returns the element at index i.
func (p Ptr[T]) Load(i int) T {
	if i < 0 || i >= p.n {
		exceptions.Panicf("device.Ptr.Load: index %d out of range [0, %d)", i, p.n)
	}
	return unsafe.Slice((*T)(p.base), p.n)[i]
}

// Store sets the element at index i.
func (p Ptr[T]) Store(i int, value T) {
	if i < 0 || i >= p.n {
		exceptions.Panicf("device.Ptr.Store: index %d out of range [0, %d)", i, p.n)
	}
	unsafe.Slice((*T)(p.base), p.n)[i] = value
}

// Unsafe returns the raw device address.
func (p Ptr[T]) Unsafe() unsafe.Pointer { return p.base }

// Const returns the read-only version of the handle.
func (p Ptr[T]) Const() ConstPtr[T] { return ConstPtr[T](p) }

// ConstPtr is the read-only version of Ptr.
type ConstPtr[T dtypes.Supported] struct {
	base unsafe.Pointer
	n    int
}

// Len returns the number of elements addressed.
func (p ConstPtr[T]) Len() int { return p.n }

// Load returns the element at index i.
func (p ConstPtr[T]) Load(i int) T {
	if i < 0 || i >= p.n {
		exceptions.Panicf("device.ConstPtr.Load: index %d out of range [0, %d)", i, p.n)
	}
	return unsafe.Slice((*T)(p.base), p.n)[i]
}

// Unsafe returns the raw device address.
func (p ConstPtr[T]) Unsafe() unsafe.Pointer { return p.base }
