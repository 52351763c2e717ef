// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package int8buffer is the compiling counterpart of boolbuffer.
package int8buffer

import (
	"github.com/gomlx/devbuf/pkg/device"
	"github.com/gomlx/devbuf/pkg/engine"
)

func New(e engine.Engine) (*device.Buffer[int8], error) {
	return device.New[int8](e, 8)
}
