// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package random

const (
	minStdMultiplier = 48271
	minStdModulus    = 1<<31 - 1
)

// MinStdRand is the "minimal standard" multiplicative linear congruential generator (Park & Miller,
// multiplier 48271, modulus 2^31-1), the default random engine.
//
// Discard is O(log n) by modular exponentiation of the multiplier.
type MinStdRand struct {
	x uint64
}

var _ Source = (*MinStdRand)(nil)

// NewMinStdRand returns a MinStdRand seeded with seed. Seeds that are a multiple of the modulus
// (including 0) would give a degenerate all-zeros sequence and are replaced by 1.
func NewMinStdRand(seed uint64) Source {
	return newMinStdRand(seed)
}

func newMinStdRand(seed uint64) *MinStdRand {
	x := seed % minStdModulus
	if x == 0 {
		x = 1
	}
	return &MinStdRand{x: x}
}

// Uint64 implements Source.
func (r *MinStdRand) Uint64() uint64 {
	r.x = r.x * minStdMultiplier % minStdModulus
	return r.x
}

// Min implements Source.
func (r *MinStdRand) Min() uint64 { return 1 }

// Max implements Source.
func (r *MinStdRand) Max() uint64 { return minStdModulus - 1 }

// Discard implements Source.
func (r *MinStdRand) Discard(n uint64) {
	r.x = r.x * powMod(minStdMultiplier, n, minStdModulus) % minStdModulus
}

// powMod returns base^exp mod m, for m < 2^32 so products fit in 64 bits.
func powMod(base, exp, m uint64) uint64 {
	result := uint64(1)
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = result * base % m
		}
		base = base * base % m
		exp >>= 1
	}
	return result
}
