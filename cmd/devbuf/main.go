// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// devbuf fills device buffers with index-seeded random values and compares them with a tolerance.
//
// It generates three buffers: two with -seed and one with -seed+1, and reports whether the first
// two compare equal (they should, the fill is reproducible) and whether the reseeded one compares
// equal to them (it shouldn't, unless the range is degenerate or -eps is large).
//
// Example:
//
//	devbuf -engine="go:parallelism=4,capacity=1GiB" -dtype=bf16 -n=1000000 -a=-1 -b=1 -show=8
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/devbuf/pkg/core/dtypes"
	"github.com/gomlx/devbuf/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/devbuf/pkg/engine"
	_ "github.com/gomlx/devbuf/pkg/engine/default"
	"github.com/gomlx/devbuf/pkg/random"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

var (
	flagEngine = flag.String("engine", "",
		fmt.Sprintf("Engine configuration, in the format \"<name>:<config>\". If empty it uses $%s, "+
			"or the first registered engine. Registered engines: %s.",
			engine.DEVBUF_ENGINE, strings.Join(engine.List(), ", ")))
	flagDType  = flag.String("dtype", "float32", "Element type of the buffers, e.g.: float32, f64, bf16, int8, uint16.")
	flagN      = flag.Int("n", 1<<20, "Number of elements per buffer.")
	flagA      = flag.Float64("a", 0, "Lower bound of the values generated.")
	flagB      = flag.Float64("b", 1, "Upper bound of the values generated: excluded for floats, included for integers.")
	flagSeed   = flag.Uint64("seed", random.DefaultSeed, "Seed of the random source.")
	flagEps    = flag.Float64("eps", 1e-6, "Tolerance of the comparison: elements differing by eps or more are different.")
	flagSource = flag.String("source", "minstd", "Random source: \"minstd\" or \"philox\".")
	flagDist   = flag.String("dist", "uniform", "Distribution for float types: \"uniform\" in [a, b) or \"normal\" "+
		"with mean a and standard deviation b. Integer types are always uniform in [a, b].")
	flagShow = flag.Int("show", 5, "Number of generated values to display.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'devbuf -help'.", flag.Args())
		os.Exit(1)
	}

	p, err := parseParams()
	if err != nil {
		klog.Errorf("%v. See 'devbuf -help'.", err)
		os.Exit(1)
	}

	var e engine.Engine
	if *flagEngine != "" {
		e, err = engine.NewWithConfig(*flagEngine)
	} else {
		e, err = engine.New()
	}
	if err != nil {
		klog.Errorf("Failed to create engine: %+v", err)
		os.Exit(1)
	}

	err = runAndReport(e, p)
	e.Finalize()
	if err != nil {
		klog.Errorf("Failed to run devbuf: %+v", err)
		os.Exit(1)
	}
}

// runAndReport runs devbuf on e and prints the report.
func runAndReport(e engine.Engine, p *params) error {
	start := time.Now()
	r, err := runForDType(e, p)
	if err != nil {
		return errors.WithMessagef(err, "devbuf -dtype=%s -n=%d", p.dtype, p.n)
	}
	report(e, p, r, time.Since(start))
	return nil
}

// parseParams validates the flags.
func parseParams() (*params, error) {
	p := &params{
		n:    *flagN,
		a:    *flagA,
		b:    *flagB,
		eps:  *flagEps,
		seed: *flagSeed,
		show: *flagShow,
	}
	if p.n < 0 {
		return nil, errors.Errorf("invalid -n=%d", p.n)
	}
	var err error
	p.dtype, err = dtypes.FromName(*flagDType)
	if err != nil {
		return nil, err
	}
	var found bool
	p.newSource, found = random.SourceByName(*flagSource)
	if !found {
		return nil, errors.Errorf("unknown -source=%q", *flagSource)
	}
	switch *flagDist {
	case "uniform":
	case "normal":
		if !p.dtype.IsFloat() || p.dtype.IsFloat16() {
			return nil, errors.Errorf("-dist=normal requires -dtype=float32 or float64, got %s", p.dtype)
		}
		p.normal = true
	default:
		return nil, errors.Errorf("unknown -dist=%q", *flagDist)
	}
	return p, nil
}

// runForDType dispatches run to the Go type of p.dtype.
func runForDType(e engine.Engine, p *params) (*result, error) {
	switch p.dtype {
	case dtypes.Float32:
		return runFloat[float32](e, p)
	case dtypes.Float64:
		return runFloat[float64](e, p)
	case dtypes.Float16:
		return runHalf[float16.Float16](e, p)
	case dtypes.BFloat16:
		return runHalf[bfloat16.BFloat16](e, p)
	case dtypes.Int8:
		return runInt[int8](e, p)
	case dtypes.Int16:
		return runInt[int16](e, p)
	case dtypes.Int32:
		return runInt[int32](e, p)
	case dtypes.Int64:
		return runInt[int64](e, p)
	case dtypes.Uint8:
		return runInt[uint8](e, p)
	case dtypes.Uint16:
		return runInt[uint16](e, p)
	case dtypes.Uint32:
		return runInt[uint32](e, p)
	case dtypes.Uint64:
		return runInt[uint64](e, p)
	}
	return nil, errors.Errorf("dtype %s not supported by devbuf", p.dtype)
}

// report prints the parameters, the results and the engine statistics.
func report(e engine.Engine, p *params, r *result, elapsed time.Duration) {
	fmt.Println(titleStyle.Render("devbuf"))
	table := newPlainTable()
	table.Row("engine", e.Description())
	table.Row("dtype", p.dtype.String())
	table.Row("elements", humanize.Comma(int64(p.n)))
	table.Row("buffer size", humanize.IBytes(uint64(p.dtype.Memory(p.n))))
	table.Row("distribution", p.describeDistribution())
	table.Row("seed", fmt.Sprintf("%d", p.seed))
	table.Row("eps", fmt.Sprintf("%g", p.eps))
	table.Row("equal, same seed", styleBool(r.reproducible, true))
	table.Row(fmt.Sprintf("equal, seed %d", p.seed+1), styleBool(r.reseeded, false))
	if len(r.sample) > 0 {
		table.Row("first values", strings.Join(r.sample, ", "))
	}
	table.Row("elapsed", elapsed.String())
	fmt.Println(table.Render())

	stats := e.Stats()
	fmt.Println(titleStyle.Render("Engine statistics"))
	table = newPlainTable()
	table.Row("peak memory", humanize.IBytes(stats.PeakBytes))
	table.Row("allocations", humanize.Comma(int64(stats.TotalAllocations)))
	table.Row("frees", humanize.Comma(int64(stats.TotalFrees)))
	table.Row("kernel launches", humanize.Comma(int64(stats.KernelLaunches)))
	fmt.Println(table.Render())
}
