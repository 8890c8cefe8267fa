// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package monitor samples the monitored region of a kernel into one byte
// per tile.
//
// A Reducer reduces the values covered by each tile (minimum, maximum or
// average) and quantizes the result to a byte with a Quantizer. The byte is
// then looked up in the kernel's selection table.
package monitor

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/ajroetker/go-acr/acr/contrib/geometry"
	"github.com/ajroetker/go-acr/acr/contrib/grid"
)

// Sample holds one quantized byte per tile, in row-major tile order.
type Sample []byte

// Equal reports whether s and o hold the same bytes.
func (s Sample) Equal(o Sample) bool {
	return bytes.Equal(s, o)
}

// Sampler fills a sample from the monitored region. dst has one byte per
// tile.
type Sampler interface {
	Sample(dst Sample)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(dst Sample)

// Sample implements Sampler.
func (f SamplerFunc) Sample(dst Sample) { f(dst) }

// Reduction selects how the values of a tile are combined.
type Reduction int

const (
	Max Reduction = iota
	Min
	Avg
)

// String returns the description-file spelling of the reduction.
func (r Reduction) String() string {
	switch r {
	case Max:
		return "max"
	case Min:
		return "min"
	case Avg:
		return "avg"
	default:
		return "unknown"
	}
}

// ParseReduction parses the spelling produced by Reduction.String.
func ParseReduction(s string) (Reduction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "max":
		return Max, nil
	case "min":
		return Min, nil
	case "avg", "average":
		return Avg, nil
	}
	return Max, fmt.Errorf("monitor: unknown reduction %q", s)
}

// Quantizer maps a reduced tile value to the byte looked up in the
// selection table.
type Quantizer func(v float64) byte

// Clamp truncates v to an integer in [0, 255]. NaN maps to 0.
func Clamp(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v)
}

// Reducer samples a dense row-major array whose shape is the extent of the
// grid's monitored dimensions.
type Reducer struct {
	grid      *grid.Grid
	reduction Reduction
	quantize  Quantizer
	data      []float64
	strides   []int
	origin    []int64

	ranges []geometry.Range
	odo    []int64
}

// NewReducer returns a reducer over data. data is read at every Sample call;
// it aliases the kernel's monitored array. A nil quantizer uses Clamp.
func NewReducer(g *grid.Grid, reduction Reduction, data []float64, q Quantizer) (*Reducer, error) {
	extents := g.Extents()
	size := int64(1)
	strides := make([]int, len(extents))
	for j := len(extents) - 1; j >= 0; j-- {
		strides[j] = int(size)
		size *= extents[j]
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("monitor: monitored array has %d values, grid covers %d", len(data), size)
	}
	if q == nil {
		q = Clamp
	}
	origin := make([]int64, len(extents))
	for j, b := range g.Bounds() {
		origin[j] = b.Lo
	}
	return &Reducer{
		grid:      g,
		reduction: reduction,
		quantize:  q,
		data:      data,
		strides:   strides,
		origin:    origin,
		odo:       make([]int64, len(extents)),
	}, nil
}

// Sample implements Sampler.
func (r *Reducer) Sample(dst Sample) {
	for tile := range r.grid.Total() {
		r.ranges = r.grid.Ranges(tile, r.ranges)
		dst[tile] = r.quantize(r.reduce(r.ranges))
	}
}

// reduce walks the rows of the tile: every coordinate of the leading
// dimensions, with the last dimension handled as one contiguous slice.
func (r *Reducer) reduce(ranges []geometry.Range) float64 {
	last := len(ranges) - 1
	for j := range ranges {
		r.odo[j] = ranges[j].Lo
	}

	var acc float64
	var count int
	switch r.reduction {
	case Max:
		acc = math.Inf(-1)
	case Min:
		acc = math.Inf(1)
	}
	for {
		off := 0
		for j := 0; j < last; j++ {
			off += int(r.odo[j]-r.origin[j]) * r.strides[j]
		}
		lo := off + int(ranges[last].Lo-r.origin[last])
		row := r.data[lo : lo+int(ranges[last].Len())]
		switch r.reduction {
		case Max:
			acc = math.Max(acc, floats.Max(row))
		case Min:
			acc = math.Min(acc, floats.Min(row))
		case Avg:
			acc += floats.Sum(row)
			count += len(row)
		}

		j := last - 1
		for ; j >= 0; j-- {
			r.odo[j]++
			if r.odo[j] <= ranges[j].Hi {
				break
			}
			r.odo[j] = ranges[j].Lo
		}
		if j < 0 {
			break
		}
	}
	if r.reduction == Avg {
		return acc / float64(count)
	}
	return acc
}
