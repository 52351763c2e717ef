// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package engine defines the interface a parallel execution engine needs to implement to hold
// device buffers and run the parallel primitives over them.
//
// An engine owns a device memory space: it allocates and frees raw blocks of memory (Memory),
// moves whole blocks to and from the host, and launches data-parallel kernels over an index
// range (Launch). The generic drivers Reduce and Tabulate are built on top of Launch.
//
// Engines are registered by name (see Register) and created from a configuration string of the
// form "<engine_name>:<engine_configuration>", see New and NewWithConfig.
package engine

import (
	"os"
	"slices"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Memory is a raw block of device memory allocated by an Engine.
//
// It is only meaningful to the Engine that allocated it.
type Memory interface {
	// ID uniquely identifies the allocation within its engine, used for logging.
	ID() string

	// NumBytes is the size requested at allocation.
	NumBytes() int

	// Pointer returns the device address of the block. It is never nil for a live allocation.
	//
	// For engines whose memory is not host addressable it must only be dereferenced inside
	// kernels launched by the same engine.
	Pointer() unsafe.Pointer
}

// Kernel is a data-parallel function applied to the index range [start, end).
type Kernel func(start, end int)

// Engine is the API that needs to be implemented by a device execution engine.
type Engine interface {
	// Name returns the short name of the engine, as used in the configuration string. E.g.: "go".
	Name() string

	// Description is a longer description of the Engine that can be used to pretty-print.
	Description() string

	// Allocate reserves numBytes of device memory. It fails with ErrOutOfMemory if the device
	// cannot hold it.
	Allocate(numBytes int) (Memory, error)

	// Free releases memory allocated by this engine. Freeing twice fails with ErrAlreadyFreed.
	Free(mem Memory) error

	// CopyToDevice copies the whole src into mem. len(src) must equal mem.NumBytes().
	CopyToDevice(mem Memory, src []byte) error

	// CopyToHost copies the whole of mem into dst. len(dst) must equal mem.NumBytes().
	CopyToHost(dst []byte, mem Memory) error

	// Launch runs kernel over [0, n) split into non-overlapping chunks, each index covered exactly
	// once, possibly in parallel and in any order. It blocks until every chunk finished.
	//
	// A failure in the kernel is returned as an error wrapping ErrKernelFailed.
	Launch(n int, kernel Kernel) error

	// Stats returns a snapshot of the memory and execution counters.
	Stats() Stats

	// Finalize releases all the associated resources immediately, and makes the engine invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns an Engine.
type Constructor func(config string) (Engine, error)

var (
	registryMu             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register engine with the given name, and a constructor that takes as input a configuration string that is
// passed along to the engine constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered engines, sorted.
func List() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the default engine configuration to use, if DEVBUF_ENGINE is not set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// DEVBUF_ENGINE is the environment variable with the default engine configuration to use.
//
// The format of config is "<engine_name>:<engine_configuration>".
//
//nolint:revive
const DEVBUF_ENGINE = "DEVBUF_ENGINE"

// New returns a new default Engine.
//
// The default is:
//
// 1. The environment DEVBUF_ENGINE is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered engine is used with an empty configuration.
func New() (Engine, error) {
	config, found := os.LookupEnv(DEVBUF_ENGINE)
	if found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// MustNew is like New, but panics on error.
func MustNew() Engine {
	e, err := New()
	if err != nil {
		panic(err)
	}
	return e
}

// NewWithConfig creates an engine from a configuration string.
//
// The format of config is "<engine_name>:<engine_configuration>". If there is no ":", the whole
// config is taken as the engine name, and an empty config means the first registered engine.
func NewWithConfig(config string) (Engine, error) {
	registryMu.Lock()
	if len(registeredConstructors) == 0 {
		registryMu.Unlock()
		return nil, errors.Wrapf(ErrUnknownEngine,
			`no registered engines -- maybe import the default ones with import _ "github.com/gomlx/devbuf/pkg/engine/default"?`)
	}
	engineName := firstRegistered
	engineConfig := ""
	if config != "" {
		engineName = config
		if idx := strings.Index(config, ":"); idx != -1 {
			engineName = config[:idx]
			engineConfig = config[idx+1:]
		}
	}
	constructor, found := registeredConstructors[engineName]
	registryMu.Unlock()
	if !found {
		return nil, errors.Wrapf(ErrUnknownEngine, "can't find engine %q for configuration %q given", engineName, config)
	}
	e, err := constructor(engineConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create engine %q with configuration %q", engineName, engineConfig)
	}
	return e, nil
}
