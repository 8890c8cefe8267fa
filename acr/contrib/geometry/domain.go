// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package geometry implements the iteration-domain service consumed by the
// adaptive runtime: restricting statement domains to an alternative's
// computation shape and to a tile, computing lexicographic bounds, and
// printing the loop nest that executes a statement over a domain.
//
// Domains are integer hyper-rectangles. Each dimension carries its class
// (free, monitor-bound or alternative-bound); monitor-bound dimensions are the
// ones the tile grid partitions and the only ones alternatives restrict.
//
// A Context owns scratch state and is not safe for concurrent use. Code
// generation workers each own one Context:
//
//	ctxs := make([]*geometry.Context, workers)
//	for w := range ctxs {
//	    ctxs[w] = geometry.NewContext()
//	}
package geometry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a statement domain cannot be interpreted.
var ErrMalformed = errors.New("geometry: malformed domain")

// Class classifies one dimension of a statement's iteration space.
type Class int

const (
	// Free dimensions are never restricted.
	Free Class = iota

	// MonitorBound dimensions are partitioned by the tile grid.
	MonitorBound

	// AlternativeBound dimensions are tied to an alternative's parameter.
	AlternativeBound
)

// String returns the description-file spelling of the class.
func (c Class) String() string {
	switch c {
	case Free:
		return "free"
	case MonitorBound:
		return "monitor"
	case AlternativeBound:
		return "alternative"
	default:
		return "unknown"
	}
}

// ParseClass parses the spelling produced by Class.String.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "free":
		return Free, nil
	case "monitor":
		return MonitorBound, nil
	case "alternative":
		return AlternativeBound, nil
	}
	return Free, fmt.Errorf("geometry: unknown dimension class %q", s)
}

// Shape is the computation shape an alternative imposes on the monitor-bound
// dimensions of a statement.
type Shape int

const (
	// ShapeFull leaves the domain untouched.
	ShapeFull Shape = iota

	// ShapeZero intersects the domain with the empty set.
	ShapeZero

	// ShapeCorner keeps only the first and last iteration of each tile.
	ShapeCorner
)

// Range is a closed integer interval [Lo, Hi]. It is empty when Hi < Lo.
type Range struct {
	Lo, Hi int64
}

// Empty reports whether the range contains no point.
func (r Range) Empty() bool {
	return r.Hi < r.Lo
}

// Len returns the number of points in the range.
func (r Range) Len() int64 {
	if r.Empty() {
		return 0
	}
	return r.Hi - r.Lo + 1
}

// Intersect returns the points common to r and o.
func (r Range) Intersect(o Range) Range {
	return Range{Lo: max(r.Lo, o.Lo), Hi: min(r.Hi, o.Hi)}
}

// Dim is one dimension of a Domain.
type Dim struct {
	Range
	Class Class

	// Monitor is the index of the monitored dimension a MonitorBound
	// dimension maps to, -1 for other classes.
	Monitor int

	// Corners restricts the dimension to the two boundary points of every
	// tile it is intersected with.
	Corners bool
}

// Domain is the iteration domain of one statement.
type Domain struct {
	Iterators []string
	Dims      []Dim
	empty     bool
}

// NewDomain builds a domain from its iterator names and dimensions.
func NewDomain(iterators []string, dims []Dim) Domain {
	return Domain{Iterators: iterators, Dims: dims}
}

// IsEmpty reports whether the domain contains no point.
func (d Domain) IsEmpty() bool {
	if d.empty {
		return true
	}
	for _, dim := range d.Dims {
		if dim.Empty() {
			return true
		}
	}
	return false
}

// Clone returns a copy of d that shares no mutable state with it.
func (d Domain) Clone() Domain {
	return Domain{
		Iterators: append([]string(nil), d.Iterators...),
		Dims:      append([]Dim(nil), d.Dims...),
		empty:     d.empty,
	}
}

// NumMonitorDims returns the number of monitor-bound dimensions of d.
func (d Domain) NumMonitorDims() int {
	n := 0
	for _, dim := range d.Dims {
		if dim.Class == MonitorBound {
			n++
		}
	}
	return n
}

// Validate checks that d can be specialized and printed.
func (d Domain) Validate() error {
	if len(d.Iterators) != len(d.Dims) {
		return fmt.Errorf("%w: %d iterators for %d dimensions", ErrMalformed, len(d.Iterators), len(d.Dims))
	}
	seen := make(map[string]bool, len(d.Iterators))
	for i, dim := range d.Dims {
		name := d.Iterators[i]
		if name == "" {
			return fmt.Errorf("%w: dimension %d has no iterator", ErrMalformed, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: iterator %q used twice", ErrMalformed, name)
		}
		seen[name] = true
		if dim.Empty() {
			return fmt.Errorf("%w: dimension %s has bounds [%d, %d]", ErrMalformed, name, dim.Lo, dim.Hi)
		}
		if dim.Class == MonitorBound && dim.Monitor < 0 {
			return fmt.Errorf("%w: monitor-bound dimension %s has no monitored dimension", ErrMalformed, name)
		}
	}
	return nil
}
