// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package random

import "math/bits"

// Philox4x32 constants, from Salmon et al., "Parallel Random Numbers: As Easy as 1, 2, 3" (2011).
const (
	philoxM0 = 0xD2511F53
	philoxM1 = 0xCD9E8D57
	philoxW0 = 0x9E3779B9
	philoxW1 = 0xBB67AE85

	philoxRounds = 10
)

// Philox4x32 is the counter-based Philox4x32-10 generator: each 128-bit counter value is encrypted
// with the 64-bit key (the seed) into four 32-bit outputs.
//
// Being counter-based, Discard is O(1).
type Philox4x32 struct {
	key     [2]uint32
	counter [4]uint32

	// block holds the outputs for counter, and next is the index of the next one to return (4 means none).
	block [4]uint32
	next  int
}

var _ Source = (*Philox4x32)(nil)

// NewPhilox4x32 returns a Philox4x32 keyed with seed, starting at counter 0.
func NewPhilox4x32(seed uint64) Source {
	return &Philox4x32{
		key:  [2]uint32{uint32(seed), uint32(seed >> 32)},
		next: 4,
	}
}

func philoxRound(counter [4]uint32, key [2]uint32) [4]uint32 {
	hi0, lo0 := bits.Mul32(philoxM0, counter[0])
	hi1, lo1 := bits.Mul32(philoxM1, counter[2])
	return [4]uint32{hi1 ^ counter[1] ^ key[0], lo1, hi0 ^ counter[3] ^ key[1], lo0}
}

// philoxBlock encrypts counter with key.
func philoxBlock(counter [4]uint32, key [2]uint32) [4]uint32 {
	for round := range philoxRounds {
		if round > 0 {
			key[0] += philoxW0
			key[1] += philoxW1
		}
		counter = philoxRound(counter, key)
	}
	return counter
}

// advanceCounter adds n to the 128-bit counter.
func (p *Philox4x32) advanceCounter(n uint64) {
	var carry uint32
	p.counter[0], carry = bits.Add32(p.counter[0], uint32(n), 0)
	p.counter[1], carry = bits.Add32(p.counter[1], uint32(n>>32), carry)
	p.counter[2], carry = bits.Add32(p.counter[2], 0, carry)
	p.counter[3], _ = bits.Add32(p.counter[3], 0, carry)
}

// Uint64 implements Source. Values are 32 bits wide.
func (p *Philox4x32) Uint64() uint64 {
	if p.next == 4 {
		p.block = philoxBlock(p.counter, p.key)
		p.advanceCounter(1)
		p.next = 0
	}
	value := p.block[p.next]
	p.next++
	return uint64(value)
}

// Min implements Source.
func (p *Philox4x32) Min() uint64 { return 0 }

// Max implements Source.
func (p *Philox4x32) Max() uint64 { return 1<<32 - 1 }

// Discard implements Source.
func (p *Philox4x32) Discard(n uint64) {
	if n == 0 {
		return
	}
	// When a block is loaded the counter was already advanced past it.
	pending := uint64(4 - p.next)
	if n < pending {
		p.next += int(n)
		return
	}
	n -= pending
	p.advanceCounter(n / 4)
	p.next = 4
	if rem := int(n % 4); rem > 0 {
		p.block = philoxBlock(p.counter, p.key)
		p.advanceCounter(1)
		p.next = rem
	}
}
