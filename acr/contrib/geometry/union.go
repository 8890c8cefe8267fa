// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"fmt"
	"io"
	"strings"
)

// Piece assigns the work of every tile of a union scan. Cells are indexed
// by monitored dimension.
type Piece interface {
	// Domain returns the specialized statement domain executed by the tile
	// at cell. An empty domain skips the tile.
	Domain(cell []int) Domain

	// Emit returns the comment label and the body of an executed tile.
	Emit(cell []int) (label, body string)
}

// PrintUnion implements Service.
//
// Monitor-bound loops are split at tile boundaries, so the scan visits the
// points of d in the same order as a single loop nest over d. The tile is
// known once the innermost monitor-bound loop is split: the loops from there
// on come from the tile's domain, and corner restrictions of outer
// monitor-bound dimensions become a guard. Loops enclosing no executed tile
// are not printed.
func (c *Context) PrintUnion(w io.Writer, d Domain, cuts [][]Range, p Piece) error {
	if d.IsEmpty() {
		return nil
	}
	if len(d.Iterators) != len(d.Dims) {
		return fmt.Errorf("%w: %d iterators for %d dimensions", ErrMalformed, len(d.Iterators), len(d.Dims))
	}
	s := &scan{
		c:     c,
		w:     w,
		d:     d,
		cuts:  cuts,
		p:     p,
		cell:  make([]int, len(cuts)),
		tiles: make([]Range, len(cuts)),
		last:  -1,
	}
	bound := make([]bool, len(cuts))
	for j, dim := range d.Dims {
		if dim.Class != MonitorBound {
			continue
		}
		if dim.Monitor < 0 || dim.Monitor >= len(cuts) {
			return fmt.Errorf("%w: dimension %s bound to monitored dimension %d of %d", ErrMalformed, d.Iterators[j], dim.Monitor, len(cuts))
		}
		if bound[dim.Monitor] {
			return fmt.Errorf("%w: monitored dimension %d bound twice", ErrMalformed, dim.Monitor)
		}
		bound[dim.Monitor] = true
		s.last = j
	}
	for m, ok := range bound {
		if !ok {
			return fmt.Errorf("%w: monitored dimension %d is not bound", ErrMalformed, m)
		}
	}
	if s.last < 0 {
		return fmt.Errorf("%w: no monitor-bound dimension", ErrMalformed)
	}
	return s.dim(0, 0)
}

type scan struct {
	c    *Context
	w    io.Writer
	d    Domain
	cuts [][]Range
	p    Piece

	// cell and tiles hold the tile index and range of every monitored
	// dimension split so far.
	cell  []int
	tiles []Range

	// last is the innermost monitor-bound dimension.
	last int
}

func (s *scan) dim(j, lvl int) error {
	dim := s.d.Dims[j]
	if dim.Class != MonitorBound {
		if !s.live(j + 1) {
			return nil
		}
		return s.loop(j, lvl, dim.Range)
	}
	m := dim.Monitor
	for t, cut := range s.cuts[m] {
		r := dim.Range.Intersect(cut)
		if r.Empty() {
			continue
		}
		s.cell[m], s.tiles[m] = t, cut
		if j == s.last {
			if err := s.tile(j, lvl, r); err != nil {
				return err
			}
			continue
		}
		if !s.live(j + 1) {
			continue
		}
		if err := s.loop(j, lvl, r); err != nil {
			return err
		}
	}
	return nil
}

// loop prints dimension j over r and the dimensions inside it.
func (s *scan) loop(j, lvl int, r Range) error {
	var b strings.Builder
	loopHeader(&b, lvl, s.d.Iterators[j], r, false)
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	if err := s.dim(j+1, lvl+1); err != nil {
		return err
	}
	b.Reset()
	indent(&b, lvl)
	b.WriteString("}\n")
	_, err := io.WriteString(s.w, b.String())
	return err
}

// live reports whether a tile reachable from the current cell, with the
// monitored dimensions of loops j and deeper still free, executes.
func (s *scan) live(j int) bool {
	for j <= s.last && s.d.Dims[j].Class != MonitorBound {
		j++
	}
	if j > s.last {
		return !s.c.Restrict(s.p.Domain(s.cell), s.tiles).IsEmpty()
	}
	dim := s.d.Dims[j]
	m := dim.Monitor
	t0, r0 := s.cell[m], s.tiles[m]
	found := false
	for t, cut := range s.cuts[m] {
		if dim.Range.Intersect(cut).Empty() {
			continue
		}
		s.cell[m], s.tiles[m] = t, cut
		if found = s.live(j + 1); found {
			break
		}
	}
	s.cell[m], s.tiles[m] = t0, r0
	return found
}

// tile prints the innermost monitor-bound loop j over r for the now
// complete cell, with the loops inside it.
func (s *scan) tile(j, lvl int, r Range) error {
	td := s.c.Restrict(s.p.Domain(s.cell), s.tiles)
	if td.IsEmpty() {
		return nil
	}
	var guards []string
	for k := range j {
		dk := td.Dims[k]
		if dk.Class != MonitorBound || !dk.Corners {
			continue
		}
		rk := s.d.Dims[k].Range.Intersect(s.tiles[dk.Monitor])
		if rk.Hi > rk.Lo {
			it := s.d.Iterators[k]
			guards = append(guards, fmt.Sprintf("%s == %d || %s == %d", it, rk.Lo, it, rk.Hi))
		}
	}
	dims := make([]Dim, 0, len(td.Dims)-j)
	dims = append(dims, Dim{Range: r, Class: MonitorBound, Monitor: td.Dims[j].Monitor, Corners: td.Dims[j].Corners})
	dims = append(dims, s.d.Dims[j+1:]...)

	label, body := s.p.Emit(s.cell)
	if label != "" {
		var b strings.Builder
		indent(&b, lvl)
		fmt.Fprintf(&b, "/* %s */\n", label)
		if _, err := io.WriteString(s.w, b.String()); err != nil {
			return err
		}
	}
	return s.c.printNest(s.w, lvl, s.d.Iterators[j:], dims, conjunction(guards), body)
}

func conjunction(terms []string) string {
	if len(terms) == 1 {
		return terms[0]
	}
	for i, t := range terms {
		terms[i] = "(" + t + ")"
	}
	return strings.Join(terms, " && ")
}
