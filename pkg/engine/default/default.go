// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default registers the default engines, currently the host simulated one ("go").
//
// To use it simply include:
//
//	import _ "github.com/gomlx/devbuf/pkg/engine/default"
package _default

import (
	_ "github.com/gomlx/devbuf/pkg/engine/hostsim"
)
