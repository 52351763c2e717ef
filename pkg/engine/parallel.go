// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"sync"

	"github.com/pkg/errors"
)

// Reduce maps every index in [0, n) with mapFn and folds the values, together with init, using combine.
//
// combine must be associative and commutative: chunks are folded independently and their partial
// results are combined in completion order, so any other combiner gives results that depend on
// the engine's partitioning. init is combined exactly once. For n == 0 it returns init.
func Reduce[V any](e Engine, n int, init V, combine func(a, b V) V, mapFn func(i int) V) (V, error) {
	if e == nil {
		return init, errors.New("engine.Reduce: nil engine")
	}
	if n < 0 {
		return init, errors.Wrapf(ErrInvalidLength, "engine.Reduce: n=%d", n)
	}
	if n == 0 {
		return init, nil
	}
	var mu sync.Mutex
	result := init
	err := e.Launch(n, func(start, end int) {
		partial := mapFn(start)
		for i := start + 1; i < end; i++ {
			partial = combine(partial, mapFn(i))
		}
		mu.Lock()
		result = combine(result, partial)
		mu.Unlock()
	})
	if err != nil {
		var zero V
		return zero, errors.WithMessage(err, "engine.Reduce")
	}
	return result, nil
}

// Tabulate calls fn(i) for every index i in [0, n), in any order and possibly in parallel.
//
// fn must only depend on i (and on immutable captured state) for the result to be independent of
// the engine's execution order.
func Tabulate(e Engine, n int, fn func(i int)) error {
	if e == nil {
		return errors.New("engine.Tabulate: nil engine")
	}
	if n < 0 {
		return errors.Wrapf(ErrInvalidLength, "engine.Tabulate: n=%d", n)
	}
	if n == 0 {
		return nil
	}
	err := e.Launch(n, func(start, end int) {
		for i := start; i < end; i++ {
			fn(i)
		}
	})
	if err != nil {
		return errors.WithMessage(err, "engine.Tabulate")
	}
	return nil
}
