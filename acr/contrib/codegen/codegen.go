// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package codegen turns a monitor sample into the C source of one
// specialized kernel.
//
// Statements are emitted in order, each as a single scan of its domain
// whose monitor-bound loops are split at tile boundaries. Inside a tile the
// alternative selected by the tile's sampled byte decides the work: its
// restricted statement domain, with parameter and function substitutions
// applied to the statement body. Every point therefore runs in the same
// order as in the original loop nest.
//
// A statement whose outermost dimension is monitor-bound is split into one
// unit per tile of that dimension. Units are spread over the code generation
// workers; each worker prints with its own geometry context.
package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajroetker/go-acr/acr/contrib/geometry"
	"github.com/ajroetker/go-acr/acr/contrib/grid"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
	"github.com/ajroetker/go-acr/acr/contrib/strategy"
	"github.com/ajroetker/go-acr/acr/contrib/workerpool"
)

// Statement is one statement of the kernel's loop body.
type Statement struct {
	Body   string
	Domain geometry.Domain
}

// unit is a consecutive slice of one statement's scan.
type unit struct {
	statement int
	domain    geometry.Domain
}

// Generator emits kernel bodies for monitor samples. Only one Body call may
// run at a time: workers reuse their geometry context and buffers.
type Generator struct {
	grid       *grid.Grid
	cuts       [][]geometry.Range
	statements []Statement
	units      []unit
	table      *strategy.Table
	services   []geometry.Service
	pool       *workerpool.Pool

	parts []strings.Builder
}

// New returns a generator. services holds one geometry service per pool
// worker, and every alternative reachable from table must have been
// specialized for each of them. Every statement must bind each monitored
// dimension of g exactly once.
func New(g *grid.Grid, statements []Statement, table *strategy.Table, services []geometry.Service, pool *workerpool.Pool) (*Generator, error) {
	if len(services) < pool.NumWorkers() {
		return nil, fmt.Errorf("codegen: %d geometry services for %d workers", len(services), pool.NumWorkers())
	}
	for _, alt := range table.Alternatives() {
		if len(alt.Domains) < pool.NumWorkers() {
			return nil, fmt.Errorf("codegen: alternative %d specialized for %d workers, want %d", alt.Index, len(alt.Domains), pool.NumWorkers())
		}
		for w, row := range alt.Domains[:pool.NumWorkers()] {
			if len(row) != len(statements) {
				return nil, fmt.Errorf("codegen: alternative %d worker %d has %d domains for %d statements", alt.Index, w, len(row), len(statements))
			}
		}
	}
	cuts := g.Cuts()
	var units []unit
	for s, stmt := range statements {
		if n := stmt.Domain.NumMonitorDims(); n != g.NumDims() {
			return nil, fmt.Errorf("codegen: statement %d binds %d of %d monitored dimensions", s, n, g.NumDims())
		}
		outer := stmt.Domain.Dims[0]
		if outer.Class != geometry.MonitorBound {
			units = append(units, unit{statement: s, domain: stmt.Domain})
			continue
		}
		for _, cut := range cuts[outer.Monitor] {
			r := outer.Range.Intersect(cut)
			if r.Empty() {
				continue
			}
			d := stmt.Domain.Clone()
			d.Dims[0].Range = r
			units = append(units, unit{statement: s, domain: d})
		}
	}
	return &Generator{
		grid:       g,
		cuts:       cuts,
		statements: statements,
		units:      units,
		table:      table,
		services:   services,
		pool:       pool,
		parts:      make([]strings.Builder, pool.NumWorkers()),
	}, nil
}

// Body returns the loop body implementing sample: every statement in order,
// each tile running the alternative its byte selects.
func (g *Generator) Body(sample monitor.Sample) (string, error) {
	if len(sample) != g.grid.Total() {
		return "", fmt.Errorf("codegen: sample has %d bytes for %d tiles", len(sample), g.grid.Total())
	}
	errs := make([]error, len(g.parts))
	g.pool.ParallelForWorker(len(g.units), func(worker, start, end int) {
		b := &g.parts[worker]
		b.Reset()
		p := &tiles{g: g, worker: worker, sample: sample}
		for u := start; u < end; u++ {
			p.statement = g.units[u].statement
			if err := g.services[worker].PrintUnion(b, g.units[u].domain, g.cuts, p); err != nil {
				errs[worker] = fmt.Errorf("codegen: statement %d: %w", p.statement, err)
				return
			}
		}
	})
	if err := errors.Join(errs...); err != nil {
		return "", err
	}

	var body strings.Builder
	for w := range g.pool.Chunks(len(g.units)) {
		body.WriteString(g.parts[w].String())
	}
	return body.String(), nil
}

// tiles assigns every tile of one statement the alternative selected by the
// tile's sampled byte.
type tiles struct {
	g         *Generator
	worker    int
	statement int
	sample    monitor.Sample
}

func (p *tiles) lookup(cell []int) (int, *strategy.Alternative) {
	tile := p.g.grid.Index(cell)
	return tile, p.g.table.Lookup(p.sample[tile])
}

// Domain implements geometry.Piece.
func (p *tiles) Domain(cell []int) geometry.Domain {
	_, alt := p.lookup(cell)
	return alt.Domains[p.worker][p.statement]
}

// Emit implements geometry.Piece.
func (p *tiles) Emit(cell []int) (label, body string) {
	tile, alt := p.lookup(cell)
	return fmt.Sprintf("tile %d: %s", tile, alt), alt.Apply(p.g.statements[p.statement].Body)
}

// Wrap returns the full translation unit of a kernel: the preamble followed
// by `void symbol prototype { body }`. prototype includes the parentheses.
func Wrap(symbol, prototype, preamble, body string) string {
	var b strings.Builder
	if preamble != "" {
		b.WriteString(strings.TrimRight(preamble, "\n"))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "void %s%s {\n%s}\n", symbol, prototype, body)
	return b.String()
}

// Arity returns the number of parameters declared by a prototype such as
// "(double *A, long n)". "()" and "(void)" declare none.
func Arity(prototype string) (int, error) {
	p := strings.TrimSpace(prototype)
	if !strings.HasPrefix(p, "(") || !strings.HasSuffix(p, ")") {
		return 0, fmt.Errorf("codegen: prototype %q is not parenthesized", prototype)
	}
	inner := strings.TrimSpace(p[1 : len(p)-1])
	if inner == "" || inner == "void" {
		return 0, nil
	}
	n, depth := 1, 0
	for _, r := range inner {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				n++
			}
		}
		if depth < 0 {
			return 0, fmt.Errorf("codegen: unbalanced prototype %q", prototype)
		}
	}
	if depth != 0 {
		return 0, fmt.Errorf("codegen: unbalanced prototype %q", prototype)
	}
	return n, nil
}
