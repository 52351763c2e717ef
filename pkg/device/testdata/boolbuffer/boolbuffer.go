// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package boolbuffer must not compile: bool is not a device element type.
package boolbuffer

import (
	"github.com/gomlx/devbuf/pkg/device"
	"github.com/gomlx/devbuf/pkg/engine"
)

func New(e engine.Engine) (*device.Buffer[bool], error) {
	return device.New[bool](e, 8)
}
