// Copyright 2025 go-acr Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package acr is an adaptive specialization runtime for numerical kernels.
//
// A Runtime partitions the monitored dimensions of a kernel into a grid of
// tiles. After every kernel step a coordinator goroutine samples the
// monitored data into one byte per tile, selects an alternative for each
// tile, generates the C source of a kernel specialized for that selection,
// compiles and loads it, and hands it to the driver. The driver never waits
// for a compilation unless the runtime runs in Sync mode.
//
// Usage:
//
//	k, err := acr.LoadKernel("heat.yaml")
//	rt, err := acr.New(acr.ConfigFromEnv(acr.DefaultPrefix, nil), k,
//	    acr.WithInitial(original),
//	    acr.WithMonitoredData(temperature, nil))
//	if err := rt.Start(ctx); err != nil { ... }
//	for step := 0; step < n; step++ {
//	    rt.Call(args...)
//	    rt.EndStep()
//	}
//	rt.Close()
package acr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-acr/acr/contrib/codegen"
	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/geometry"
	"github.com/ajroetker/go-acr/acr/contrib/grid"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
	"github.com/ajroetker/go-acr/acr/contrib/perf"
	"github.com/ajroetker/go-acr/acr/contrib/stats"
	"github.com/ajroetker/go-acr/acr/contrib/strategy"
	"github.com/ajroetker/go-acr/acr/contrib/workerpool"
)

var (
	// ErrInfoAndDie is returned by New after printing the kernel info when
	// Config.InfoAndDie is set and the exit hook returned.
	ErrInfoAndDie = errors.New("acr: info requested")

	// ErrState reports a lifecycle call out of order.
	ErrState = errors.New("acr: invalid runtime state")
)

// Runtime is one adaptive kernel instance.
//
// Call, EndStep and Optimal belong to the driver goroutine and must not be
// called concurrently. The coordinator goroutine owns the variant history.
type Runtime struct {
	cfg    Config
	kernel *Kernel
	logger *slog.Logger
	id     uuid.UUID

	grid    *grid.Grid
	table   *strategy.Table
	pool    *workerpool.Pool
	gen     *codegen.Generator
	arity   int
	backend compile.Backend
	closer  io.Closer
	sampler monitor.Sampler
	stats   *stats.Collector
	fatal   func(error)
	stderr  io.Writer

	// Driver state.
	initial *compile.Func
	active  *compile.Func
	running bool
	closed  bool

	// Shared state.
	pending hotSwap
	current atomic.Pointer[monitor.Sample]
	cont    atomic.Bool
	steps   atomic.Int64
	wake    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	// Coordinator state.
	cache     perf.Cache
	accounted int64

	replayPath string
	closeOnce  sync.Once
	closeErr   error
}

// New builds a runtime for kernel k: the tile grid, the selection table and
// the restricted statement domains of every alternative for every code
// generation worker. It does not start the coordinator.
func New(cfg Config, k *Kernel, opts ...Option) (*Runtime, error) {
	o := options{exit: os.Exit, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.New()
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("kernel", k.Name, "instance", id.String())

	if err := k.validate(); err != nil {
		return nil, err
	}
	l, err := k.layout()
	if err != nil {
		return nil, err
	}
	if cfg.InfoAndDie {
		fmt.Fprintf(o.stderr, "\nACR info minsize:%d\n", l.grid.MinExtent())
		o.exit(0)
		return nil, ErrInfoAndDie
	}

	alts, err := k.alternatives()
	if err != nil {
		return nil, err
	}
	strategies, err := k.strategies()
	if err != nil {
		return nil, err
	}
	table, err := strategy.NewTable(strategies, alts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKernel, err)
	}

	cfg.GenThreads = max(cfg.GenThreads, 1)
	cfg.CompileThreads = max(cfg.CompileThreads, 1)
	pool := workerpool.New(cfg.GenThreads)
	services, err := specialize(pool.NumWorkers(), alts, l.statements)
	if err != nil {
		pool.Close()
		return nil, err
	}
	gen, err := codegen.New(l.grid, l.statements, table, services, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	r := &Runtime{
		cfg:     cfg,
		kernel:  k,
		logger:  logger,
		id:      id,
		grid:    l.grid,
		table:   table,
		pool:    pool,
		gen:     gen,
		arity:   l.arity,
		backend: o.backend,
		sampler: o.sampler,
		stats:   stats.New(),
		stderr:  o.stderr,
		initial: o.initial,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	r.fatal = o.fatal
	if r.fatal == nil {
		r.fatal = func(err error) {
			r.logger.Error("unrecoverable runtime failure", "err", err)
			o.exit(1)
		}
	}

	if r.initial != nil && r.initial.Arity != r.arity {
		pool.Close()
		return nil, fmt.Errorf("%w: initial function has %d parameters, kernel has %d", ErrKernel, r.initial.Arity, r.arity)
	}
	if r.sampler == nil && o.data != nil {
		reduction, _ := monitor.ParseReduction(k.Reduction)
		red, err := monitor.NewReducer(l.grid, reduction, o.data, o.quantizer)
		if err != nil {
			pool.Close()
			return nil, err
		}
		r.sampler = red
	}
	if r.backend == nil {
		switch cfg.Backend {
		case BackendTCC:
			mem, err := compile.NewMemory(cfg.LibTCC, cfg.CFlags)
			if err != nil {
				pool.Close()
				return nil, err
			}
			r.backend, r.closer = mem, mem
		default:
			r.backend = compile.NewSystem(cfg.Compiler, cfg.CFlags, cfg.CompileThreads)
		}
	}

	r.logger.Debug("runtime initialized",
		"tiles", l.grid.Total(), "counts", l.grid.Counts(),
		"alternatives", len(alts), "gen_threads", cfg.GenThreads,
		"compile_threads", cfg.CompileThreads, "backend", r.backend.Name(), "mode", cfg.Mode)
	return r, nil
}

// MustNew is like New but prints the error and exits the process on
// failure.
func MustNew(cfg Config, k *Kernel, opts ...Option) *Runtime {
	r, err := New(cfg, k, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acr: %v\n", err)
		os.Exit(1)
	}
	return r
}

// specialize computes the restricted domains of every alternative for every
// code generation worker, each worker with its own geometry context.
func specialize(workers int, alts []*strategy.Alternative, statements []codegen.Statement) ([]geometry.Service, error) {
	domains := make([]geometry.Domain, len(statements))
	for s, st := range statements {
		domains[s] = st.Domain
	}
	for _, a := range alts {
		a.Reserve(workers)
	}
	services := make([]geometry.Service, workers)
	var g errgroup.Group
	for w := range workers {
		svc := geometry.NewContext()
		services[w] = svc
		g.Go(func() error {
			for _, a := range alts {
				if err := a.Specialize(w, svc, domains); err != nil {
					return fmt.Errorf("%w: worker %d: %w", ErrKernel, w, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return services, nil
}

// Config returns the runtime configuration.
func (r *Runtime) Config() Config { return r.cfg }

// Grid returns the tile grid.
func (r *Runtime) Grid() *grid.Grid { return r.grid }

// Stats returns the statistics collector.
func (r *Runtime) Stats() *stats.Collector { return r.stats }

// Start launches the coordinator. Cancelling ctx stops the coordinator and
// aborts an in-flight compilation.
func (r *Runtime) Start(ctx context.Context) error {
	switch {
	case r.closed:
		return fmt.Errorf("%w: closed", ErrState)
	case r.running:
		return fmt.Errorf("%w: already started", ErrState)
	case r.sampler == nil:
		return fmt.Errorf("%w: no sampler configured", ErrState)
	case r.initial == nil:
		return fmt.Errorf("%w: no initial function configured", ErrState)
	}
	select {
	case <-r.done:
		return fmt.Errorf("%w: stopped", ErrState)
	default:
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	if r.active == nil {
		r.active = r.initial
	}
	r.running = true
	r.cont.Store(true)
	go r.coordinate(ctx)
	return nil
}

// Call runs the active kernel with args, one machine word per parameter.
func (r *Runtime) Call(args ...uintptr) {
	f := r.active
	if f == nil {
		f = r.initial
	}
	start := time.Now()
	f.Call(args...)
	r.stats.ObserveKernel(time.Since(start))
}

// EndStep ends a kernel step: it wakes the coordinator, then picks up a
// newly published kernel. In Sync mode it waits for the coordinator's
// answer to this step.
func (r *Runtime) EndStep() {
	r.stats.Step(time.Now())
	r.steps.Add(1)
	r.signal()
	if r.cfg.Mode == Sync && r.running {
		for {
			if k := r.pending.Take(); k != nil {
				r.adopt(k)
				return
			}
			select {
			case <-r.done:
				return
			default:
				runtime.Gosched()
			}
		}
	}
	if k := r.pending.Take(); k != nil {
		r.adopt(k)
	}
}

// adopt makes a kernel taken from the hot-swap slot the active one.
func (r *Runtime) adopt(k *published) {
	r.active = k.fn
	r.current.Store(k.sample)
}

func (r *Runtime) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Stop clears the continue flag, wakes the coordinator and waits for it to
// exit. A compilation in flight completes first.
func (r *Runtime) Stop() {
	if !r.running {
		return
	}
	r.cont.Store(false)
	r.signal()
	<-r.done
	r.cancel()
	r.running = false
	if k := r.pending.Take(); k != nil {
		r.adopt(k)
	}
}

// Optimal samples and specializes synchronously in the calling goroutine,
// then runs the resulting kernel for the next step. It counts as the end of
// a step and may only be used while the coordinator is not running.
func (r *Runtime) Optimal(ctx context.Context) error {
	if r.running {
		return fmt.Errorf("%w: coordinator running", ErrState)
	}
	if r.sampler == nil {
		return fmt.Errorf("%w: no sampler configured", ErrState)
	}
	r.stats.Step(time.Now())
	r.steps.Add(1)
	if err := r.advance(ctx); err != nil {
		return err
	}
	if k := r.pending.Take(); k != nil {
		r.adopt(k)
	}
	return nil
}

// CurrentSample returns a copy of the sample the active kernel was
// specialized for, or nil while the initial function is active.
func (r *Runtime) CurrentSample() monitor.Sample {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	return append(monitor.Sample(nil), *s...)
}

// Body returns the loop body specialized for sample. Like Optimal, it may
// only be used while the coordinator is not running.
func (r *Runtime) Body(sample monitor.Sample) (string, error) {
	switch {
	case r.closed:
		return "", fmt.Errorf("%w: closed", ErrState)
	case r.running:
		return "", fmt.Errorf("%w: coordinator running", ErrState)
	}
	return r.gen.Body(sample)
}

// Generate returns the translation unit specialized for sample. It may only
// be used while the coordinator is not running.
func (r *Runtime) Generate(sample monitor.Sample) (string, error) {
	body, err := r.Body(sample)
	if err != nil {
		return "", err
	}
	return codegen.Wrap(r.kernel.Symbol(), r.kernel.Prototype, r.kernel.Preamble, body), nil
}

// Variants returns the history of specializations in creation order. It
// must not be called while the coordinator is running.
func (r *Runtime) Variants() []*perf.Variant {
	return r.cache.Entries()
}

// ReplayPath returns the path of the replay file written by Close.
func (r *Runtime) ReplayPath() string { return r.replayPath }

// Close stops the coordinator, writes the replay file, releases every
// specialization and prints the statistics when enabled. The runtime
// cannot be restarted.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.Stop()
		r.closed = true
		var errs []error
		if head := r.cache.Head(); head != nil {
			head.EndingAt = max(head.EndingAt, r.steps.Load()-1)
			path, err := r.cache.WriteReplayFile(r.cfg.ReplayDir, r.kernel.Prototype)
			if err != nil {
				errs = append(errs, err)
			} else {
				r.replayPath = path
				r.logger.Info("replay function written", "path", path, "variants", r.cache.Len())
			}
		}
		r.active = r.initial
		r.current.Store(nil)
		errs = append(errs, r.cache.Close())
		r.pool.Close()
		if r.closer != nil {
			errs = append(errs, r.closer.Close())
		}
		if r.cfg.Stats {
			errs = append(errs, r.stats.Report(r.stderr, r.kernel.Name, r.cfg.GenThreads, r.cfg.CompileThreads))
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
