// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package random provides deterministic, seekable random number sources and the distributions
// sampled from them.
//
// Every Source can be advanced with Discard as if n values had been drawn, which is what makes
// per-index sampling possible: the value at index i is "seed the source, discard i, draw once",
// a pure function of (seed, i) that doesn't depend on which goroutine computes it or when.
package random

// DefaultSeed is the conventional seed, the same for all sources.
const DefaultSeed uint64 = 1

// Source is a deterministic random number engine.
type Source interface {
	// Uint64 returns the next raw value, uniformly distributed in [Min(), Max()].
	Uint64() uint64

	// Min is the smallest value returned by Uint64.
	Min() uint64

	// Max is the largest value returned by Uint64.
	Max() uint64

	// Discard advances the state as if n values had been drawn.
	Discard(n uint64)
}

// SourceFactory creates a Source from a seed.
type SourceFactory func(seed uint64) Source

// Distribution samples values of type T from a Source.
//
// Implementations must consume a fixed number of draws per sample and hold no state between
// samples, so samples are reproducible by index.
type Distribution[T any] interface {
	Sample(src Source) T
}

// DistributionFactory creates a Distribution from its two parameters, e.g. the bounds of a uniform
// distribution or the mean and standard deviation of a normal one.
type DistributionFactory[T any] func(a, b T) Distribution[T]

// SourceByName returns the SourceFactory for the given name: "minstd" (the default) or "philox".
func SourceByName(name string) (SourceFactory, bool) {
	switch name {
	case "", "minstd", "default":
		return NewMinStdRand, true
	case "philox":
		return NewPhilox4x32, true
	}
	return nil, false
}
