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
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-acr/acr/contrib/codegen"
	"github.com/ajroetker/go-acr/acr/contrib/geometry"
	"github.com/ajroetker/go-acr/acr/contrib/grid"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
	"github.com/ajroetker/go-acr/acr/contrib/strategy"
)

// ErrKernel reports a malformed kernel description.
var ErrKernel = errors.New("acr: malformed kernel")

// Kernel is the description of an adaptive kernel: its signature, the
// statements of its loop body with their iteration domains, and the
// alternatives a tile can be assigned.
type Kernel struct {
	Name      string `yaml:"name"`
	Prototype string `yaml:"prototype"`

	// Preamble is emitted before every generated function (includes,
	// helper declarations).
	Preamble string `yaml:"preamble,omitempty"`

	// Grid is the tile side length.
	Grid int64 `yaml:"grid"`

	// Reduction combines the monitored values of a tile: min, max or avg.
	Reduction string `yaml:"reduction,omitempty"`

	Statements   []StatementSpec   `yaml:"statements"`
	Alternatives []AlternativeSpec `yaml:"alternatives"`
	Strategies   []StrategySpec    `yaml:"strategies"`
}

// StatementSpec is one statement and its iteration domain.
type StatementSpec struct {
	Body      string    `yaml:"body"`
	Iterators []string  `yaml:"iterators"`
	Dims      []DimSpec `yaml:"dims"`
}

// DimSpec bounds one iteration dimension. Class is free, monitor or
// alternative.
type DimSpec struct {
	Lo    int64  `yaml:"lo"`
	Hi    int64  `yaml:"hi"`
	Class string `yaml:"class,omitempty"`
}

// AlternativeSpec declares an alternative. Name and Value are used by the
// parameter and function kinds.
type AlternativeSpec struct {
	Kind  string `yaml:"kind"`
	Name  string `yaml:"name,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// StrategySpec maps one byte value, or an inclusive range of two, to an
// alternative.
type StrategySpec struct {
	Values      []int `yaml:"values,flow"`
	Alternative int   `yaml:"alternative"`
}

// ParseKernel decodes a YAML kernel description. Unknown fields are
// rejected.
func ParseKernel(data []byte) (*Kernel, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var k Kernel
	if err := dec.Decode(&k); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKernel, err)
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

// LoadKernel reads and parses a kernel description file.
func LoadKernel(path string) (*Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := ParseKernel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

var cIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (k *Kernel) validate() error {
	switch {
	case !cIdent.MatchString(k.Name):
		return fmt.Errorf("%w: name %q is not a C identifier", ErrKernel, k.Name)
	case k.Grid < 1:
		return fmt.Errorf("%w: grid size %d", ErrKernel, k.Grid)
	case len(k.Statements) == 0:
		return fmt.Errorf("%w: no statements", ErrKernel)
	}
	if _, err := k.Arity(); err != nil {
		return fmt.Errorf("%w: %w", ErrKernel, err)
	}
	if _, err := monitor.ParseReduction(k.Reduction); err != nil {
		return fmt.Errorf("%w: %w", ErrKernel, err)
	}
	return nil
}

// Symbol returns the name of the generated kernel function.
func (k *Kernel) Symbol() string {
	return k.Name + "_acr_function"
}

// Arity returns the number of parameters of the kernel.
func (k *Kernel) Arity() (int, error) {
	return codegen.Arity(k.Prototype)
}

// statements returns the statements with their domains. The k-th
// monitor-bound dimension of a statement is bound to monitored dimension k.
func (k *Kernel) statements() ([]codegen.Statement, error) {
	out := make([]codegen.Statement, len(k.Statements))
	for s, spec := range k.Statements {
		dims := make([]geometry.Dim, len(spec.Dims))
		monitored := 0
		for j, ds := range spec.Dims {
			class, err := geometry.ParseClass(ds.Class)
			if err != nil {
				return nil, fmt.Errorf("%w: statement %d: %w", ErrKernel, s, err)
			}
			dims[j] = geometry.Dim{Range: geometry.Range{Lo: ds.Lo, Hi: ds.Hi}, Class: class}
			if class == geometry.MonitorBound {
				dims[j].Monitor = monitored
				monitored++
			}
		}
		d := geometry.NewDomain(spec.Iterators, dims)
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: statement %d: %w", ErrKernel, s, err)
		}
		out[s] = codegen.Statement{Body: spec.Body, Domain: d}
	}
	return out, nil
}

// monitorBounds returns, per monitored dimension, the union of the bounds of
// the statement dimensions bound to it.
func monitorBounds(svc geometry.Service, statements []codegen.Statement) ([]geometry.Range, error) {
	var bounds []geometry.Range
	for s, st := range statements {
		for j, dim := range st.Domain.Dims {
			if dim.Class != geometry.MonitorBound {
				continue
			}
			lo, hi, err := svc.LexBounds(st.Domain, j)
			if err != nil {
				return nil, fmt.Errorf("%w: statement %d: %w", ErrKernel, s, err)
			}
			if dim.Monitor == len(bounds) {
				bounds = append(bounds, geometry.Range{Lo: lo, Hi: hi})
				continue
			}
			b := &bounds[dim.Monitor]
			b.Lo, b.Hi = min(b.Lo, lo), max(b.Hi, hi)
		}
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: no monitor-bound dimension", ErrKernel)
	}
	return bounds, nil
}

func (k *Kernel) alternatives() ([]*strategy.Alternative, error) {
	if len(k.Alternatives) == 0 {
		return nil, fmt.Errorf("%w: no alternatives", ErrKernel)
	}
	out := make([]*strategy.Alternative, len(k.Alternatives))
	for i, spec := range k.Alternatives {
		kind, err := strategy.ParseKind(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKernel, err)
		}
		a, err := strategy.New(i, kind, spec.Name, spec.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKernel, err)
		}
		out[i] = a
	}
	return out, nil
}

func (k *Kernel) strategies() ([]strategy.Strategy, error) {
	out := make([]strategy.Strategy, len(k.Strategies))
	for i, spec := range k.Strategies {
		switch len(spec.Values) {
		case 1:
			out[i] = strategy.Strategy{Lo: spec.Values[0], Hi: spec.Values[0], Alternative: spec.Alternative}
		case 2:
			out[i] = strategy.Strategy{Lo: spec.Values[0], Hi: spec.Values[1], Alternative: spec.Alternative}
		default:
			return nil, fmt.Errorf("%w: strategy %d has %d values, want 1 or 2", ErrKernel, i, len(spec.Values))
		}
	}
	return out, nil
}

// layout is the tiling of a kernel.
type layout struct {
	statements []codegen.Statement
	grid       *grid.Grid
	arity      int
}

func (k *Kernel) layout() (*layout, error) {
	statements, err := k.statements()
	if err != nil {
		return nil, err
	}
	bounds, err := monitorBounds(geometry.NewContext(), statements)
	if err != nil {
		return nil, err
	}
	for s, st := range statements {
		if n := st.Domain.NumMonitorDims(); n != len(bounds) {
			return nil, fmt.Errorf("%w: statement %d has %d monitor-bound dimensions, want %d", ErrKernel, s, n, len(bounds))
		}
	}
	g, err := grid.New(k.Grid, bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKernel, err)
	}
	arity, err := k.Arity()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKernel, err)
	}
	return &layout{statements: statements, grid: g, arity: arity}, nil
}

// Info summarizes the tiling of a kernel.
type Info struct {
	Symbol string
	Arity  int

	// Bounds are the observed bounds of the monitored dimensions.
	Bounds []geometry.Range

	// Counts is the number of tiles per monitored dimension; Tiles their
	// product.
	Counts []int
	Tiles  int

	// MinExtent is the smallest monitored extent, the upper limit of a
	// useful grid size.
	MinExtent int64

	Alternatives []string
}

// Info returns the tiling summary of k.
func (k *Kernel) Info() (*Info, error) {
	l, err := k.layout()
	if err != nil {
		return nil, err
	}
	alts, err := k.alternatives()
	if err != nil {
		return nil, err
	}
	info := &Info{
		Symbol:    k.Symbol(),
		Arity:     l.arity,
		Bounds:    l.grid.Bounds(),
		Counts:    l.grid.Counts(),
		Tiles:     l.grid.Total(),
		MinExtent: l.grid.MinExtent(),
	}
	for _, a := range alts {
		info.Alternatives = append(info.Alternatives, a.String())
	}
	return info, nil
}
