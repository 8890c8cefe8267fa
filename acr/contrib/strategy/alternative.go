// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package strategy holds the computational alternatives a tile can be
// assigned and the selection table mapping a sampled byte to an alternative.
package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ajroetker/go-acr/acr/contrib/geometry"
)

// Kind is the kind of substitution an alternative performs.
type Kind int

const (
	// Parameter replaces a named parameter with a constant value.
	Parameter Kind = iota

	// Function replaces calls to a named function with another function.
	Function

	// Zero skips the computation of the tile entirely.
	Zero

	// Corner computes only the boundary iterations of the tile.
	Corner

	// Full computes the original loop body.
	Full
)

// String returns the description-file spelling of the kind.
func (k Kind) String() string {
	switch k {
	case Parameter:
		return "parameter"
	case Function:
		return "function"
	case Zero:
		return "zero"
	case Corner:
		return "corner"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// ParseKind parses the spelling produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parameter":
		return Parameter, nil
	case "function":
		return Function, nil
	case "zero", "zero-computation":
		return Zero, nil
	case "corner", "corner-computation":
		return Corner, nil
	case "full", "full-computation":
		return Full, nil
	}
	return Full, fmt.Errorf("strategy: unknown alternative kind %q", s)
}

// Shape returns the computation shape the kind imposes on monitor-bound
// dimensions.
func (k Kind) Shape() geometry.Shape {
	switch k {
	case Zero:
		return geometry.ShapeZero
	case Corner:
		return geometry.ShapeCorner
	default:
		return geometry.ShapeFull
	}
}

// Alternative is one computational variant a tile can be assigned.
type Alternative struct {
	// Index is the ordinal of the alternative in its kernel.
	Index int
	Kind  Kind

	// Name is the parameter or function replaced by Parameter and Function
	// alternatives.
	Name string

	// Value is the replacement text: a constant for Parameter, a function
	// name for Function.
	Value string

	// Domains holds the restricted statement domains, indexed by code
	// generation worker then statement. Each worker owns its row.
	Domains [][]geometry.Domain

	ident *regexp.Regexp
}

// New returns an alternative of the given kind. name and value are required
// for Parameter and Function kinds and ignored otherwise.
func New(index int, kind Kind, name, value string) (*Alternative, error) {
	a := &Alternative{Index: index, Kind: kind}
	switch kind {
	case Parameter, Function:
		if name == "" || value == "" {
			return nil, fmt.Errorf("strategy: %s alternative %d needs a name and a value", kind, index)
		}
		ident, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("strategy: alternative %d: %w", index, err)
		}
		a.Name, a.Value, a.ident = name, value, ident
	case Zero, Corner, Full:
	default:
		return nil, fmt.Errorf("strategy: alternative %d has unknown kind %d", index, kind)
	}
	return a, nil
}

// Reserve allocates one row of restricted domains per code generation worker.
// It must be called before any concurrent Specialize.
func (a *Alternative) Reserve(workers int) {
	a.Domains = make([][]geometry.Domain, workers)
}

// Specialize computes the restricted domain of every statement for one code
// generation worker using that worker's geometry service, and stores them in
// the worker's row.
func (a *Alternative) Specialize(worker int, svc geometry.Service, statements []geometry.Domain) error {
	row := make([]geometry.Domain, len(statements))
	for s, d := range statements {
		r, err := svc.Specialize(d, a.Kind.Shape())
		if err != nil {
			return fmt.Errorf("alternative %d, statement %d: %w", a.Index, s, err)
		}
		row[s] = r
	}
	a.Domains[worker] = row
	return nil
}

// Apply returns the statement body with the alternative's substitution
// applied. Shape alternatives return body unchanged.
func (a *Alternative) Apply(body string) string {
	if a.ident == nil {
		return body
	}
	return a.ident.ReplaceAllLiteralString(body, a.Value)
}

// String implements fmt.Stringer.
func (a *Alternative) String() string {
	switch a.Kind {
	case Parameter, Function:
		return fmt.Sprintf("#%d %s %s=%s", a.Index, a.Kind, a.Name, a.Value)
	default:
		return fmt.Sprintf("#%d %s", a.Index, a.Kind)
	}
}
