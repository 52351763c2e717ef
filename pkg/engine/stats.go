// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats holds the memory and execution counters of an Engine.
type Stats struct {
	LiveAllocations  int
	LiveBytes        uint64
	PeakBytes        uint64
	TotalAllocations uint64
	TotalFrees       uint64
	KernelLaunches   uint64

	// Capacity is the device memory limit in bytes, 0 if unlimited.
	Capacity uint64
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	capacity := "unlimited"
	if s.Capacity > 0 {
		capacity = humanize.IBytes(s.Capacity)
	}
	return fmt.Sprintf("live=%d (%s), peak=%s, capacity=%s, allocations=%d, frees=%d, launches=%d",
		s.LiveAllocations, humanize.IBytes(s.LiveBytes), humanize.IBytes(s.PeakBytes), capacity,
		s.TotalAllocations, s.TotalFrees, s.KernelLaunches)
}
