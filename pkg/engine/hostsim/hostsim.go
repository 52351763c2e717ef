// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hostsim implements a host-simulated device engine: device memory lives in the Go heap and
// kernels run on a pool of goroutines.
//
// It is portable and fast enough for tests, tools and small workloads, and it honors the same
// contract a real accelerator engine does: memory is only reachable through the engine's handles,
// allocations are accounted against a (configurable) device capacity, and launches are synchronous.
//
// The configuration string is a comma-separated list of "key=value":
//
//   - parallelism=<int>: maximum number of chunks running concurrently. 0 runs kernels sequentially,
//     -1 is unlimited. Default is runtime.NumCPU().
//   - capacity=<bytes>: device memory size, accepting humanized values like "64MiB" or "1GB".
//     Default is unlimited.
//   - chunk=<int>: minimum number of indices per kernel chunk. Default is 64.
//
// Example: DEVBUF_ENGINE="go:parallelism=4,capacity=256MiB".
package hostsim

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/devbuf/internal/workerspool"
	"github.com/gomlx/devbuf/pkg/engine"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EngineName to be used in DEVBUF_ENGINE to specify this engine.
const EngineName = "go"

// DefaultMinChunkSize is the default minimum number of indices per kernel chunk.
const DefaultMinChunkSize = 64

// chunksPerWorker over-partitions launches so uneven chunks balance out.
const chunksPerWorker = 2

func init() {
	engine.Register(EngineName, func(config string) (engine.Engine, error) {
		return NewWithConfig(config)
	})
}

// Engine implements engine.Engine on the host.
type Engine struct {
	pool         *workerspool.Pool
	capacity     uint64
	minChunkSize int

	mu        sync.Mutex
	live      map[*allocation]struct{}
	stats     engine.Stats
	finalized bool
}

// Compile-time check that hostsim.Engine implements engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// New creates an Engine with the default configuration.
func New() *Engine {
	e := &Engine{
		pool:         workerspool.New(),
		minChunkSize: DefaultMinChunkSize,
		live:         make(map[*allocation]struct{}),
	}
	return e
}

// NewWithConfig creates an Engine from a configuration string, see package documentation for the format.
func NewWithConfig(config string) (*Engine, error) {
	e := New()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.Errorf("hostsim: invalid configuration %q, expected \"key=value\"", part)
		}
		switch key {
		case "parallelism":
			parallelism, err := strconv.Atoi(value)
			if err != nil || parallelism < -1 {
				return nil, errors.Errorf("hostsim: invalid parallelism %q, expected an int >= -1", value)
			}
			e.pool.SetMaxParallelism(parallelism)
		case "capacity":
			capacity, err := humanize.ParseBytes(value)
			if err != nil {
				return nil, errors.Wrapf(err, "hostsim: invalid capacity %q", value)
			}
			e.capacity = capacity
		case "chunk":
			chunk, err := strconv.Atoi(value)
			if err != nil || chunk < 1 {
				return nil, errors.Errorf("hostsim: invalid chunk %q, expected an int >= 1", value)
			}
			e.minChunkSize = chunk
		default:
			return nil, errors.Errorf("hostsim: unknown configuration key %q", key)
		}
	}
	e.stats.Capacity = e.capacity
	return e, nil
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return EngineName }

// String implements fmt.Stringer.
func (e *Engine) String() string { return EngineName }

// Description implements engine.Engine.
func (e *Engine) Description() string {
	parallelism := strconv.Itoa(e.pool.MaxParallelism())
	if e.pool.IsUnlimited() {
		parallelism = "unlimited"
	}
	capacity := "unlimited"
	if e.capacity > 0 {
		capacity = humanize.IBytes(e.capacity)
	}
	return "Host simulated device (parallelism=" + parallelism + ", capacity=" + capacity + ")"
}

// Parallelism returns the maximum number of kernel chunks running concurrently.
func (e *Engine) Parallelism() int { return e.pool.MaxParallelism() }

// Stats implements engine.Engine.
func (e *Engine) Stats() engine.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Finalize frees every live allocation and makes the engine invalid.
func (e *Engine) Finalize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return
	}
	if len(e.live) > 0 && klog.V(1).Enabled() {
		klog.Infof("hostsim: Finalize releasing %d live allocations (%s)",
			len(e.live), humanize.IBytes(e.stats.LiveBytes))
	}
	for a := range e.live {
		e.lockedRelease(a)
	}
	e.finalized = true
}

// numChunks returns how many chunks to split a launch over n indices.
func (e *Engine) numChunks(n int) int {
	if !e.pool.IsEnabled() {
		return 1
	}
	workers := e.pool.MaxParallelism()
	if e.pool.IsUnlimited() {
		workers = runtime.NumCPU()
	}
	maxChunks := (n + e.minChunkSize - 1) / e.minChunkSize
	return max(1, min(chunksPerWorker*workers, maxChunks))
}

// Launch implements engine.Engine.
func (e *Engine) Launch(n int, kernel engine.Kernel) error {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		return errors.Wrap(engine.ErrEngineFinalized, "hostsim.Launch")
	}
	e.stats.KernelLaunches++
	e.mu.Unlock()
	if n < 0 {
		return errors.Wrapf(engine.ErrInvalidLength, "hostsim.Launch: n=%d", n)
	}
	if n == 0 {
		return nil
	}

	numChunks := e.numChunks(n)
	chunkSize := (n + numChunks - 1) / numChunks
	numChunks = (n + chunkSize - 1) / chunkSize
	if klog.V(2).Enabled() {
		klog.Infof("hostsim: launch n=%d in %d chunks of %d", n, numChunks, chunkSize)
	}

	var failure any
	var failureOnce sync.Once
	e.pool.RunAll(numChunks, func(chunk int) {
		start := chunk * chunkSize
		end := min(start+chunkSize, n)
		if exception := exceptions.Try(func() { kernel(start, end) }); exception != nil {
			failureOnce.Do(func() { failure = exception })
		}
	})
	if failure != nil {
		if err, ok := failure.(error); ok {
			return errors.Wrapf(engine.ErrKernelFailed, "hostsim.Launch(n=%d): %v", n, err)
		}
		return errors.Wrapf(engine.ErrKernelFailed, "hostsim.Launch(n=%d): panic: %v", n, failure)
	}
	return nil
}

// allocation implements engine.Memory. Memory is kept as []uint64 so the block is word aligned
// for every element type.
type allocation struct {
	id       string
	numBytes int
	words    []uint64
	owner    *Engine
	freed    bool
}

// ID implements engine.Memory.
func (a *allocation) ID() string { return a.id }

// NumBytes implements engine.Memory.
func (a *allocation) NumBytes() int { return a.numBytes }

// Pointer implements engine.Memory.
func (a *allocation) Pointer() unsafe.Pointer {
	if a.freed || len(a.words) == 0 {
		exceptions.Panicf("hostsim: Pointer() of freed allocation %s", a.id)
	}
	return unsafe.Pointer(&a.words[0])
}

// bytes returns the allocation viewed as bytes, limited to the requested size.
func (a *allocation) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&a.words[0])), a.numBytes)
}

// Allocate implements engine.Engine.
//
// Zero-byte requests still reserve one word, so the returned Pointer is never nil. Requests the
// host can't hold fail with engine.ErrOutOfMemory.
func (e *Engine) Allocate(numBytes int) (engine.Memory, error) {
	if numBytes < 0 {
		return nil, errors.Wrapf(engine.ErrInvalidLength, "hostsim.Allocate(%d)", numBytes)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return nil, errors.Wrap(engine.ErrEngineFinalized, "hostsim.Allocate")
	}
	if e.capacity > 0 && e.stats.LiveBytes+uint64(numBytes) > e.capacity {
		return nil, errors.Wrapf(engine.ErrOutOfMemory, "hostsim.Allocate(%s): %s in use of %s capacity",
			humanize.IBytes(uint64(numBytes)), humanize.IBytes(e.stats.LiveBytes), humanize.IBytes(e.capacity))
	}
	numWords := max(1, numBytes/8+(numBytes%8+7)/8)
	var words []uint64
	if exception := exceptions.Try(func() { words = make([]uint64, numWords) }); exception != nil {
		return nil, errors.Wrapf(engine.ErrOutOfMemory, "hostsim.Allocate(%s): host allocation failed: %v",
			humanize.IBytes(uint64(numBytes)), exception)
	}
	a := &allocation{
		id:       uuid.NewString(),
		numBytes: numBytes,
		words:    words,
		owner:    e,
	}
	e.live[a] = struct{}{}
	e.stats.LiveAllocations++
	e.stats.LiveBytes += uint64(numBytes)
	e.stats.PeakBytes = max(e.stats.PeakBytes, e.stats.LiveBytes)
	e.stats.TotalAllocations++
	if klog.V(1).Enabled() {
		klog.Infof("hostsim: allocated %s (id=%s, live=%s)", humanize.IBytes(uint64(numBytes)), a.id,
			humanize.IBytes(e.stats.LiveBytes))
	}
	return a, nil
}

// own checks that mem was allocated by e and is still live.
//
// After Finalize every allocation is reported as ErrEngineFinalized, not ErrAlreadyFreed.
// It must be called with e.mu acquired.
func (e *Engine) own(mem engine.Memory, method string) (*allocation, error) {
	a, ok := mem.(*allocation)
	if !ok || a == nil || a.owner != e {
		return nil, errors.Wrapf(engine.ErrForeignMemory, "hostsim.%s", method)
	}
	if e.finalized {
		return nil, errors.Wrapf(engine.ErrEngineFinalized, "hostsim.%s: allocation %s", method, a.id)
	}
	if a.freed {
		return nil, errors.Wrapf(engine.ErrAlreadyFreed, "hostsim.%s: allocation %s", method, a.id)
	}
	return a, nil
}

// Free implements engine.Engine.
func (e *Engine) Free(mem engine.Memory) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.own(mem, "Free")
	if err != nil {
		return err
	}
	e.lockedRelease(a)
	return nil
}

// lockedRelease must be called with e.mu acquired.
func (e *Engine) lockedRelease(a *allocation) {
	a.freed = true
	a.words = nil
	delete(e.live, a)
	e.stats.LiveAllocations--
	e.stats.LiveBytes -= uint64(a.numBytes)
	e.stats.TotalFrees++
	if klog.V(1).Enabled() {
		klog.Infof("hostsim: freed %s (id=%s, live=%s)", humanize.IBytes(uint64(a.numBytes)), a.id,
			humanize.IBytes(e.stats.LiveBytes))
	}
}

// CopyToDevice implements engine.Engine.
func (e *Engine) CopyToDevice(mem engine.Memory, src []byte) error {
	e.mu.Lock()
	a, err := e.own(mem, "CopyToDevice")
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if len(src) != a.numBytes {
		return errors.Wrapf(engine.ErrLengthMismatch, "hostsim.CopyToDevice: %d bytes given for allocation of %d bytes",
			len(src), a.numBytes)
	}
	copy(a.bytes(), src)
	return nil
}

// CopyToHost implements engine.Engine.
func (e *Engine) CopyToHost(dst []byte, mem engine.Memory) error {
	e.mu.Lock()
	a, err := e.own(mem, "CopyToHost")
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if len(dst) != a.numBytes {
		return errors.Wrapf(engine.ErrLengthMismatch, "hostsim.CopyToHost: %d bytes given for allocation of %d bytes",
			len(dst), a.numBytes)
	}
	copy(dst, a.bytes())
	return nil
}
