// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops implements the parallel numeric primitives over device buffers: tolerance-based
// comparison (Equal) and index-seeded pseudo-random fill (Generate, Fill).
//
// Both are expressed as per-index functions run by the buffer's engine (engine.Reduce and
// engine.Tabulate), and their results don't depend on how the engine partitions or orders the work.
// Calls are synchronous: they return once the engine finished.
package ops

import (
	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/devbuf/pkg/device"
	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/pkg/errors"
)

// sameEngine returns the engine shared by lhs and rhs.
func sameEngine[T dtypes.Supported](lhs, rhs *device.Buffer[T]) (engine.Engine, error) {
	if lhs.Engine() != rhs.Engine() {
		return nil, errors.Wrapf(engine.ErrEngineMismatch, "%s and %s", lhs, rhs)
	}
	return lhs.Engine(), nil
}
