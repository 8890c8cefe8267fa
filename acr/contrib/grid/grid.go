// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package grid partitions the monitored dimensions of a kernel into
// fixed-size tiles.
//
// Tiles are numbered in row-major order: the last monitored dimension varies
// fastest. Tile t covers [origin + t_j*size, origin + t_j*size + size - 1] in
// dimension j, clipped to the observed bounds of the data.
package grid

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ajroetker/go-acr/acr/contrib/geometry"
)

// Grid is an immutable tiling of the monitored dimensions.
type Grid struct {
	size   int64
	bounds []geometry.Range
	counts []int
	total  int
}

// New tiles the given per-dimension bounds with tiles of side size.
func New(size int64, bounds []geometry.Range) (*Grid, error) {
	if size < 1 {
		return nil, fmt.Errorf("grid: tile size %d must be at least 1", size)
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("grid: no monitored dimension")
	}
	counts := make([]int, len(bounds))
	for j, b := range bounds {
		if b.Empty() {
			return nil, fmt.Errorf("grid: monitored dimension %d has bounds [%d, %d]", j, b.Lo, b.Hi)
		}
		counts[j] = int((b.Len() + size - 1) / size)
	}
	return &Grid{
		size:   size,
		bounds: append([]geometry.Range(nil), bounds...),
		counts: counts,
		total:  lo.Reduce(counts, func(acc, c int, _ int) int { return acc * c }, 1),
	}, nil
}

// Size returns the tile side length.
func (g *Grid) Size() int64 { return g.size }

// NumDims returns the number of monitored dimensions.
func (g *Grid) NumDims() int { return len(g.counts) }

// Counts returns the number of tiles along each dimension.
func (g *Grid) Counts() []int { return append([]int(nil), g.counts...) }

// Bounds returns the observed bounds of each monitored dimension.
func (g *Grid) Bounds() []geometry.Range { return append([]geometry.Range(nil), g.bounds...) }

// Total returns the number of tiles.
func (g *Grid) Total() int { return g.total }

// Extents returns the number of points along each monitored dimension.
func (g *Grid) Extents() []int64 {
	return lo.Map(g.bounds, func(b geometry.Range, _ int) int64 { return b.Len() })
}

// MinExtent returns the smallest extent over all monitored dimensions.
func (g *Grid) MinExtent() int64 {
	return lo.Min(g.Extents())
}

// Coords writes the per-dimension indices of tile into dst and returns it.
func (g *Grid) Coords(tile int, dst []int) []int {
	dst = append(dst[:0], make([]int, len(g.counts))...)
	for j := len(g.counts) - 1; j >= 0; j-- {
		dst[j] = tile % g.counts[j]
		tile /= g.counts[j]
	}
	return dst
}

// Index returns the row-major number of the tile at coords.
func (g *Grid) Index(coords []int) int {
	idx := 0
	for j, c := range coords {
		idx = idx*g.counts[j] + c
	}
	return idx
}

// Ranges writes the coordinate ranges covered by tile into dst and returns
// it. The final tile in each dimension is clipped to the observed bounds.
func (g *Grid) Ranges(tile int, dst []geometry.Range) []geometry.Range {
	dst = append(dst[:0], make([]geometry.Range, len(g.counts))...)
	for j := len(g.counts) - 1; j >= 0; j-- {
		c := int64(tile % g.counts[j])
		tile /= g.counts[j]
		start := g.bounds[j].Lo + c*g.size
		dst[j] = geometry.Range{Lo: start, Hi: start + g.size - 1}.Intersect(g.bounds[j])
	}
	return dst
}

// Cuts returns, for every monitored dimension, the ranges of its tiles in
// order.
func (g *Grid) Cuts() [][]geometry.Range {
	cuts := make([][]geometry.Range, len(g.counts))
	for j, n := range g.counts {
		cuts[j] = make([]geometry.Range, n)
		for c := range n {
			start := g.bounds[j].Lo + int64(c)*g.size
			cuts[j][c] = geometry.Range{Lo: start, Hi: start + g.size - 1}.Intersect(g.bounds[j])
		}
	}
	return cuts
}
