// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"runtime"

	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/devbuf/pkg/device"
	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/gomlx/devbuf/pkg/random"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Generate fills target with values drawn uniformly from [a, b), using the default random source
// (random.MinStdRand) seeded with seed. Use random.DefaultSeed for the conventional seed.
//
// target[i] is a pure function of (seed, a, b, i): repeating the call reproduces the same contents
// regardless of the engine's parallelism. a > b is not validated.
func Generate[T dtypes.GoFloat](target *device.Buffer[T], a, b T, seed uint64) error {
	return Fill(target, random.NewUniformReal[T], a, b, seed)
}

// GenerateHalf is Generate for the 16-bit float types, with bounds given in float32.
func GenerateHalf[T dtypes.Half](target *device.Buffer[T], a, b float32, seed uint64) error {
	return Fill(target, random.NewUniformHalf[T], dtypes.HalfFromFloat32[T](a), dtypes.HalfFromFloat32[T](b), seed)
}

// Fill fills target with values sampled from the distribution newDist(a, b), using the default
// random source seeded with seed. See FillWithSource.
func Fill[T dtypes.Supported](target *device.Buffer[T], newDist random.DistributionFactory[T], a, b T, seed uint64) error {
	return FillWithSource(target, random.NewMinStdRand, newDist, a, b, seed)
}

// FillWithSource fills target with values sampled from the distribution newDist(a, b).
//
// For every index i independently, a fresh source is created with newSource(seed), advanced by i
// draws (Source.Discard), and the distribution is sampled once. So target[i] only depends on
// (seed, a, b, i), not on the order the engine visits the indices.
//
// Prior contents of target are overwritten and never read.
func FillWithSource[T dtypes.Supported](target *device.Buffer[T], newSource random.SourceFactory,
	newDist random.DistributionFactory[T], a, b T, seed uint64) error {
	dist := newDist(a, b)
	data := target.Data()
	if klog.V(1).Enabled() {
		klog.Infof("ops.Fill(%s): %T, seed=%d", target, dist, seed)
	}
	err := engine.Tabulate(target.Engine(), target.Size(), func(i int) {
		src := newSource(seed)
		src.Discard(uint64(i))
		data.Store(i, dist.Sample(src))
	})
	runtime.KeepAlive(target)
	if err != nil {
		return errors.WithMessagef(err, "ops.Fill(%s)", target)
	}
	return nil
}
