// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/pkg/errors"

var (
	// ErrUnknownEngine is returned when the configured engine is not registered.
	ErrUnknownEngine = errors.New("devbuf: unknown engine")

	// ErrEngineFinalized is returned by an engine used after Finalize.
	ErrEngineFinalized = errors.New("devbuf: engine finalized")

	// ErrOutOfMemory is returned when the device cannot hold an allocation.
	ErrOutOfMemory = errors.New("devbuf: device out of memory")

	// ErrInvalidLength is returned for negative sizes.
	ErrInvalidLength = errors.New("devbuf: invalid length")

	// ErrLengthMismatch is returned when a host slice doesn't match the device memory it is copied to or from.
	ErrLengthMismatch = errors.New("devbuf: length mismatch")

	// ErrAlreadyFreed is returned when freeing memory (or a buffer) for the second time.
	ErrAlreadyFreed = errors.New("devbuf: already freed")

	// ErrForeignMemory is returned when an engine is given memory allocated by another engine.
	ErrForeignMemory = errors.New("devbuf: memory not allocated by this engine")

	// ErrEngineMismatch is returned when an operation mixes buffers from different engines.
	ErrEngineMismatch = errors.New("devbuf: buffers belong to different engines")

	// ErrKernelFailed is returned when a launched kernel fails during execution.
	ErrKernelFailed = errors.New("devbuf: kernel execution failed")
)
