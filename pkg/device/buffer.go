// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package device implements Buffer, a fixed-size, typed, contiguous block of device memory with a
// single owner.
//
// A Buffer is created with New and released with Free, exactly once. It can't be copied (go vet's
// copylocks check flags copies), only moved to a new owner with Move. The only ways to copy
// contents are explicit: whole-buffer transfers from/to the host (CopyFromHost, ToHost) and
// Clone.
//
// The element type is restricted at compile time to dtypes.Supported, which excludes bool: use
// int8 or uint8 instead.
//
// Typical use:
//
//	buf, err := device.New[float32](e, 1024)
//	if err != nil {
//		return err
//	}
//	defer func() { _ = buf.Free() }()
//
// Or, equivalently, with the scoped form device.With.
package device

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// noCopy is flagged by `go vet -copylocks` when the struct holding it is copied.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Buffer owns n contiguous elements of T in the memory of an engine.
//
// A Buffer is not safe for concurrent mutation: it must not be used by two operations at the same
// time if either of them writes to it.
type Buffer[T dtypes.Supported] struct {
	_ noCopy

	engine engine.Engine
	mem    engine.Memory
	size   int

	freed   bool
	cleanup runtime.Cleanup
}

// leakedMemory is what the runtime cleanup needs to release a Buffer that was never freed.
type leakedMemory struct {
	engine engine.Engine
	mem    engine.Memory
	dtype  dtypes.DType
	size   int
}

func releaseLeaked(leaked leakedMemory) {
	klog.Warningf("device.Buffer[%s] of %d elements (allocation %s) garbage collected without Free, releasing it",
		leaked.dtype, leaked.size, leaked.mem.ID())
	if err := leaked.engine.Free(leaked.mem); err != nil && klog.V(1).Enabled() {
		klog.Infof("device.Buffer: releasing leaked allocation %s: %v", leaked.mem.ID(), err)
	}
}

// New allocates a Buffer of n elements of T on the engine e. The contents are not initialized.
//
// Allocation failures (e.g. engine.ErrOutOfMemory) are returned as is, wrapped with context.
func New[T dtypes.Supported](e engine.Engine, n int) (*Buffer[T], error) {
	if e == nil {
		return nil, errors.New("device.New: nil engine")
	}
	if n < 0 {
		return nil, errors.Wrapf(engine.ErrInvalidLength, "device.New[%s](%d)", dtypes.FromGenericsType[T](), n)
	}
	var zero T
	elementSize := int(unsafe.Sizeof(zero))
	if n > math.MaxInt/elementSize {
		return nil, errors.Wrapf(engine.ErrOutOfMemory, "device.New[%s](%d): size in bytes overflows int",
			dtypes.FromGenericsType[T](), n)
	}
	mem, err := e.Allocate(n * elementSize)
	if err != nil {
		return nil, errors.WithMessagef(err, "device.New[%s](%d)", dtypes.FromGenericsType[T](), n)
	}
	return adopt[T](e, mem, n), nil
}

// MustNew is like New, but panics on error.
func MustNew[T dtypes.Supported](e engine.Engine, n int) *Buffer[T] {
	b, err := New[T](e, n)
	if err != nil {
		panic(err)
	}
	return b
}

// adopt creates the owning Buffer for mem and registers the leak cleanup.
func adopt[T dtypes.Supported](e engine.Engine, mem engine.Memory, n int) *Buffer[T] {
	b := &Buffer[T]{
		engine: e,
		mem:    mem,
		size:   n,
	}
	b.cleanup = runtime.AddCleanup(b, releaseLeaked, leakedMemory{
		engine: e,
		mem:    mem,
		dtype:  dtypes.FromGenericsType[T](),
		size:   n,
	})
	return b
}

// With allocates a Buffer of n elements, calls fn with it, and frees it on every exit path of fn,
// including errors and panics.
//
// If fn moves the buffer (see Buffer.Move), the new owner is responsible for it.
func With[T dtypes.Supported](e engine.Engine, n int, fn func(b *Buffer[T]) error) (err error) {
	b, err := New[T](e, n)
	if err != nil {
		return err
	}
	defer func() {
		if freeErr := b.Free(); freeErr != nil && err == nil {
			err = freeErr
		}
	}()
	return fn(b)
}

// Size returns the number of elements, fixed at construction. It is 0 for a moved-from buffer.
func (b *Buffer[T]) Size() int {
	return b.size
}

// DType returns the element type.
func (b *Buffer[T]) DType() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// Engine returns the engine holding the buffer's memory.
func (b *Buffer[T]) Engine() engine.Engine {
	return b.engine
}

// IsValid returns whether the buffer still owns its memory: false after Free or Move.
func (b *Buffer[T]) IsValid() bool {
	return b != nil && b.mem != nil
}

// String implements fmt.Stringer.
func (b *Buffer[T]) String() string {
	if !b.IsValid() {
		return fmt.Sprintf("device.Buffer[%s](invalid)", b.DType())
	}
	return fmt.Sprintf("device.Buffer[%s](n=%d, engine=%s)", b.DType(), b.size, b.engine.Name())
}

// checkValid panics if the buffer no longer owns memory: using it is a bug in the caller.
func (b *Buffer[T]) checkValid(method string) {
	if b == nil {
		exceptions.Panicf("device.Buffer.%s called on a nil buffer", method)
	}
	if b.mem == nil {
		state := "moved"
		if b.freed {
			state = "freed"
		}
		exceptions.Panicf("device.Buffer[%s].%s called on a %s buffer", b.DType(), method, state)
	}
}

// Data returns the mutable handle to the elements, for use in kernels. It doesn't transfer ownership,
// and it must not be used after the buffer is freed or moved.
//
// It panics if the buffer was freed or moved.
func (b *Buffer[T]) Data() Ptr[T] {
	b.checkValid("Data")
	return Ptr[T]{base: b.mem.Pointer(), n: b.size}
}

// View returns the read-only handle to the elements, for use in kernels.
//
// It panics if the buffer was freed or moved.
func (b *Buffer[T]) View() ConstPtr[T] {
	b.checkValid("View")
	return ConstPtr[T]{base: b.mem.Pointer(), n: b.size}
}

// Free releases the device memory. It must be called exactly once: a second call returns
// engine.ErrAlreadyFreed without releasing anything. Free on a moved-from buffer is a no-op, and so
// is the first Free after the engine was finalized, since Finalize already released the memory.
func (b *Buffer[T]) Free() error {
	if b == nil {
		return nil
	}
	if b.freed {
		return errors.Wrapf(engine.ErrAlreadyFreed, "device.Buffer[%s].Free", b.DType())
	}
	if b.mem == nil {
		return nil
	}
	b.cleanup.Stop()
	mem := b.mem
	b.mem = nil
	b.freed = true
	if err := b.engine.Free(mem); err != nil {
		if errors.Is(err, engine.ErrEngineFinalized) {
			// Released along with the engine.
			return nil
		}
		return errors.WithMessagef(err, "device.Buffer[%s].Free", b.DType())
	}
	return nil
}

// Move transfers ownership of the memory to a new Buffer, which is returned.
// The receiver is left empty: Size is 0, Free is a no-op and Data panics.
//
// It panics if the buffer was already freed or moved.
func (b *Buffer[T]) Move() *Buffer[T] {
	b.checkValid("Move")
	b.cleanup.Stop()
	moved := adopt[T](b.engine, b.mem, b.size)
	b.mem = nil
	b.size = 0
	return moved
}

// elementBytes views a host slice of T as bytes.
func elementBytes[T dtypes.Supported](values []T) []byte {
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}

// CopyFromHost overwrites the whole buffer with src. len(src) must equal Size(): there are no
// partial transfers.
func (b *Buffer[T]) CopyFromHost(src []T) error {
	if !b.IsValid() {
		return errors.Wrapf(engine.ErrAlreadyFreed, "device.Buffer[%s].CopyFromHost on invalid buffer", b.DType())
	}
	if len(src) != b.size {
		return errors.Wrapf(engine.ErrLengthMismatch, "device.Buffer[%s].CopyFromHost: %d elements given, buffer has %d",
			b.DType(), len(src), b.size)
	}
	err := b.engine.CopyToDevice(b.mem, elementBytes(src))
	runtime.KeepAlive(b)
	return errors.WithMessagef(err, "device.Buffer[%s].CopyFromHost", b.DType())
}

// CopyToHost copies the whole buffer into dst. len(dst) must equal Size().
func (b *Buffer[T]) CopyToHost(dst []T) error {
	if !b.IsValid() {
		return errors.Wrapf(engine.ErrAlreadyFreed, "device.Buffer[%s].CopyToHost on invalid buffer", b.DType())
	}
	if len(dst) != b.size {
		return errors.Wrapf(engine.ErrLengthMismatch, "device.Buffer[%s].CopyToHost: %d elements given, buffer has %d",
			b.DType(), len(dst), b.size)
	}
	err := b.engine.CopyToHost(elementBytes(dst), b.mem)
	runtime.KeepAlive(b)
	return errors.WithMessagef(err, "device.Buffer[%s].CopyToHost", b.DType())
}

// ToHost returns a newly allocated host slice with the contents of the buffer.
func (b *Buffer[T]) ToHost() ([]T, error) {
	dst := make([]T, b.Size())
	if err := b.CopyToHost(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// FromHost allocates a Buffer on e holding a copy of values.
func FromHost[T dtypes.Supported](e engine.Engine, values []T) (*Buffer[T], error) {
	b, err := New[T](e, len(values))
	if err != nil {
		return nil, err
	}
	if err = b.CopyFromHost(values); err != nil {
		_ = b.Free()
		return nil, err
	}
	return b, nil
}

// Clone allocates a new Buffer on the same engine and copies the contents on the device.
func (b *Buffer[T]) Clone() (*Buffer[T], error) {
	if !b.IsValid() {
		return nil, errors.Wrapf(engine.ErrAlreadyFreed, "device.Buffer[%s].Clone on invalid buffer", b.DType())
	}
	clone, err := New[T](b.engine, b.size)
	if err != nil {
		return nil, err
	}
	src, dst := b.View(), clone.Data()
	err = engine.Tabulate(b.engine, b.size, func(i int) {
		dst.Store(i, src.Load(i))
	})
	// The handles don't keep the buffers alive.
	runtime.KeepAlive(b)
	if err != nil {
		_ = clone.Free()
		return nil, errors.WithMessagef(err, "device.Buffer[%s].Clone", b.DType())
	}
	return clone, nil
}
