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

package acr

import (
	"context"
	"errors"
	"fmt"

	"github.com/ajroetker/go-acr/acr/contrib/codegen"
	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
	"github.com/ajroetker/go-acr/acr/contrib/perf"
	"github.com/ajroetker/go-acr/acr/contrib/stats"
)

// coordinate is the coordinator goroutine: it sleeps until a step ends, then
// accounts for every step ended since its previous pass.
func (r *Runtime) coordinate(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-r.wake:
		case <-ctx.Done():
			return
		}
		if !r.cont.Load() {
			r.logger.Debug("coordinator stopped", "steps", r.steps.Load(), "variants", r.cache.Len())
			return
		}
		if err := r.advance(ctx); err != nil {
			r.fatal(err)
			return
		}
	}
}

// advance handles the steps ended since the last pass. Steps that ended
// while the coordinator was busy are coalesced: they ran the head variant.
//
// The head's interval always ends at accounted-1, so the intervals of the
// history partition the steps accounted so far.
func (r *Runtime) advance(ctx context.Context) error {
	steps := r.steps.Load()
	pending := steps - r.accounted
	if pending <= 0 {
		return nil
	}

	sample := make(monitor.Sample, r.grid.Total())
	stop := r.stats.Time(stats.Monitor)
	r.sampler.Sample(sample)
	stop()

	head := r.cache.Head()
	if head != nil && head.Sample.Equal(sample) {
		r.cache.Extend(pending)
		r.accounted = steps
		r.logger.Debug("sample unchanged, reusing kernel", "steps", pending, "interval_start", head.StartingAt)
		if r.cfg.Mode == Sync {
			r.pending.Publish(head.Module.Func, &head.Sample)
		}
		return nil
	}

	v, err := r.generate(ctx, sample)
	if err != nil {
		if !errors.Is(err, compile.ErrCompile) && ctx.Err() == nil {
			return err
		}
		r.logger.Warn("specialization failed, keeping the active kernel", "err", err)
		if r.cache.Extend(pending) {
			r.accounted = steps
		}
		if r.cfg.Mode == Sync {
			if head != nil {
				r.pending.Publish(head.Module.Func, &head.Sample)
			} else {
				r.pending.Publish(r.initial, nil)
			}
		}
		return nil
	}

	if head != nil {
		head.EndingAt += pending - 1
		v.StartingAt = steps - 1
	}
	v.EndingAt = steps - 1
	r.cache.Append(v)
	r.accounted = steps
	r.pending.Publish(v.Module.Func, &v.Sample)
	r.logger.Debug("published kernel", "variant", r.cache.Len()-1, "starting_at", v.StartingAt)
	return nil
}

// generate builds, compiles and loads the kernel specialized for sample.
func (r *Runtime) generate(ctx context.Context, sample monitor.Sample) (*perf.Variant, error) {
	stop := r.stats.Time(stats.Geometry)
	body, err := r.gen.Body(sample)
	stop()
	if err != nil {
		return nil, fmt.Errorf("acr: generate: %w", err)
	}
	src := codegen.Wrap(r.kernel.Symbol(), r.kernel.Prototype, r.kernel.Preamble, body)

	if r.cfg.CheckSource {
		if err := compile.Check(r.kernel.Name+".c", src); err != nil {
			if errors.Is(err, compile.ErrCompile) {
				return nil, err
			}
			r.logger.Warn("source check unavailable", "err", err)
		}
	}

	phase := stats.CC
	if r.backend.Name() == BackendTCC {
		phase = stats.TCC
	}
	stop = r.stats.Time(phase)
	m, err := r.backend.Compile(ctx, compile.Request{
		Symbol: r.kernel.Symbol(),
		Arity:  r.arity,
		Source: src,
	})
	stop()
	if err != nil {
		return nil, err
	}
	return &perf.Variant{Body: body, Source: src, Sample: sample, Module: m}, nil
}
