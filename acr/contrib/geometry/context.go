// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"fmt"
	"io"
	"strings"
)

// Service is the set of geometry operations the runtime depends on.
type Service interface {
	// Specialize applies an alternative's computation shape to the
	// monitor-bound dimensions of a statement domain.
	Specialize(d Domain, shape Shape) (Domain, error)

	// Restrict intersects the monitor-bound dimensions of d with the
	// ranges of one tile, indexed by monitored dimension.
	Restrict(d Domain, tile []Range) Domain

	// LexBounds returns the lexicographic minimum and maximum of d along dim.
	LexBounds(d Domain, dim int) (lo, hi int64, err error)

	// PrintLoopNest writes a loop nest executing body over every point of d.
	PrintLoopNest(w io.Writer, d Domain, body string) error

	// PrintUnion writes a single scan of d in lexicographic order in which
	// every tile executes what p assigns it. cuts holds the tile ranges of
	// each monitored dimension.
	PrintUnion(w io.Writer, d Domain, cuts [][]Range, p Piece) error
}

// Context is the box-domain implementation of Service.
//
// Domains returned by Restrict alias the context's scratch storage and are
// valid until the next call to Restrict on the same context.
type Context struct {
	scratch []Dim
	line    strings.Builder
}

var _ Service = (*Context)(nil)

// NewContext returns a context with its own scratch storage.
func NewContext() *Context {
	return &Context{}
}

// Specialize implements Service.
func (c *Context) Specialize(d Domain, shape Shape) (Domain, error) {
	if err := d.Validate(); err != nil {
		return Domain{}, err
	}
	out := d.Clone()
	if out.NumMonitorDims() == 0 {
		return out, nil
	}
	switch shape {
	case ShapeFull:
	case ShapeZero:
		out.empty = true
	case ShapeCorner:
		for i := range out.Dims {
			if out.Dims[i].Class == MonitorBound {
				out.Dims[i].Corners = true
			}
		}
	default:
		return Domain{}, fmt.Errorf("%w: unknown shape %d", ErrMalformed, shape)
	}
	return out, nil
}

// Restrict implements Service.
func (c *Context) Restrict(d Domain, tile []Range) Domain {
	if d.empty {
		return d
	}
	c.scratch = append(c.scratch[:0], d.Dims...)
	for i := range c.scratch {
		dim := &c.scratch[i]
		if dim.Class != MonitorBound || dim.Monitor >= len(tile) {
			continue
		}
		dim.Range = dim.Range.Intersect(tile[dim.Monitor])
	}
	return Domain{Iterators: d.Iterators, Dims: c.scratch}
}

// LexBounds implements Service.
func (c *Context) LexBounds(d Domain, dim int) (lo, hi int64, err error) {
	if dim < 0 || dim >= len(d.Dims) {
		return 0, 0, fmt.Errorf("%w: dimension %d out of %d", ErrMalformed, dim, len(d.Dims))
	}
	if d.IsEmpty() {
		return 0, 0, fmt.Errorf("%w: empty domain has no bounds", ErrMalformed)
	}
	r := d.Dims[dim].Range
	return r.Lo, r.Hi, nil
}

// PrintLoopNest implements Service. Nothing is written for an empty domain.
//
// Corner dimensions are printed as a loop whose stride jumps from the first
// to the last point, so both boundary iterations run and nothing in between.
func (c *Context) PrintLoopNest(w io.Writer, d Domain, body string) error {
	if d.IsEmpty() {
		return nil
	}
	if len(d.Iterators) != len(d.Dims) {
		return fmt.Errorf("%w: %d iterators for %d dimensions", ErrMalformed, len(d.Iterators), len(d.Dims))
	}
	return c.printNest(w, 0, d.Iterators, d.Dims, "", body)
}

// printNest writes the loops over dims at indentation lvl, optionally inside
// an if statement testing guard.
func (c *Context) printNest(w io.Writer, lvl int, iterators []string, dims []Dim, guard, body string) error {
	c.line.Reset()
	if guard != "" {
		indent(&c.line, lvl)
		fmt.Fprintf(&c.line, "if (%s) {\n", guard)
		lvl++
	}
	for i, dim := range dims {
		loopHeader(&c.line, lvl+i, iterators[i], dim.Range, dim.Corners)
	}
	depth := lvl + len(dims)
	for _, l := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		indent(&c.line, depth)
		c.line.WriteString(strings.TrimSpace(l))
		c.line.WriteByte('\n')
	}
	for i := depth - 1; i >= lvl; i-- {
		indent(&c.line, i)
		c.line.WriteString("}\n")
	}
	if guard != "" {
		indent(&c.line, lvl-1)
		c.line.WriteString("}\n")
	}
	_, err := io.WriteString(w, c.line.String())
	return err
}

func loopHeader(b *strings.Builder, lvl int, name string, r Range, corners bool) {
	indent(b, lvl)
	step := "++" + name
	if corners && r.Hi > r.Lo {
		step = fmt.Sprintf("%s += %d", name, r.Hi-r.Lo)
	}
	fmt.Fprintf(b, "for (long %s = %d; %s <= %d; %s) {\n", name, r.Lo, name, r.Hi, step)
}

func indent(b *strings.Builder, depth int) {
	for range depth {
		b.WriteString("  ")
	}
}
