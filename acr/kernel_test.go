// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package acr

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-acr/acr/contrib/geometry"
)

// stencilYAML doubles B into A over [0, 9], tiled by 4, with tiles selected
// zero (byte 0) or full (byte 1 and above).
const stencilYAML = `
name: stencil
prototype: "(double *A, double *B)"
grid: 4
reduction: max
statements:
  - body: "A[i] = B[i] * 2;"
    iterators: [i]
    dims:
      - {lo: 0, hi: 9, class: monitor}
alternatives:
  - kind: zero
  - kind: full
strategies:
  - {values: [0], alternative: 0}
  - {values: [1, 255], alternative: 1}
`

func TestParseKernel(t *testing.T) {
	k, err := ParseKernel([]byte(stencilYAML))
	require.NoError(t, err)
	if k.Symbol() != "stencil_acr_function" {
		t.Errorf("Symbol() = %q", k.Symbol())
	}

	info, err := k.Info()
	require.NoError(t, err)
	want := &Info{
		Symbol:       "stencil_acr_function",
		Arity:        2,
		Bounds:       []geometry.Range{{Lo: 0, Hi: 9}},
		Counts:       []int{3},
		Tiles:        3,
		MinExtent:    10,
		Alternatives: []string{"#0 zero", "#1 full"},
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("Info() mismatch (-want +got):\n%s", diff)
	}
}

func TestMonitorBoundsUnion(t *testing.T) {
	k, err := ParseKernel([]byte(`
name: two
prototype: "(double **A)"
grid: 8
statements:
  - body: "A[i][j] = 0;"
    iterators: [i, j]
    dims:
      - {lo: 1, hi: 30, class: monitor}
      - {lo: 0, hi: 15, class: monitor}
  - body: "A[i][j] += 1;"
    iterators: [i, j]
    dims:
      - {lo: 0, hi: 31, class: monitor}
      - {lo: 0, hi: 7, class: monitor}
alternatives:
  - kind: full
strategies:
  - {values: [0, 255], alternative: 0}
`))
	require.NoError(t, err)
	info, err := k.Info()
	require.NoError(t, err)
	if diff := cmp.Diff([]geometry.Range{{Lo: 0, Hi: 31}, {Lo: 0, Hi: 15}}, info.Bounds); diff != "" {
		t.Errorf("Bounds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 2}, info.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if info.MinExtent != 16 {
		t.Errorf("MinExtent = %d, want 16", info.MinExtent)
	}
}

func TestParseKernelErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "name: k\nprototype: ()\ngrid: 1\ncolour: red\n"},
		{"bad name", "name: 2k\nprototype: ()\ngrid: 1\nstatements: [{body: x;}]\n"},
		{"zero grid", "name: k\nprototype: ()\ngrid: 0\nstatements: [{body: x;}]\n"},
		{"no statements", "name: k\nprototype: ()\ngrid: 1\n"},
		{"bad prototype", "name: k\nprototype: double *A\ngrid: 1\nstatements: [{body: x;}]\n"},
		{"bad reduction", "name: k\nprototype: ()\ngrid: 1\nreduction: median\nstatements: [{body: x;}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseKernel([]byte(tt.yaml)); !errors.Is(err, ErrKernel) {
				t.Errorf("ParseKernel() error = %v, want ErrKernel", err)
			}
		})
	}
}

func TestLayoutErrors(t *testing.T) {
	k, err := ParseKernel([]byte(`
name: free
prototype: "()"
grid: 2
statements:
  - body: "f(i);"
    iterators: [i]
    dims: [{lo: 0, hi: 3}]
`))
	require.NoError(t, err)
	if _, err := k.Info(); !errors.Is(err, ErrKernel) {
		t.Errorf("Info() without monitor-bound dimensions: error = %v, want ErrKernel", err)
	}

	k.Statements[0].Dims[0].Class = "monitor"
	k.Statements = append(k.Statements, StatementSpec{
		Body:      "g(i, j);",
		Iterators: []string{"i", "j"},
		Dims:      []DimSpec{{Lo: 0, Hi: 3, Class: "monitor"}, {Lo: 0, Hi: 3, Class: "monitor"}},
	})
	if _, err := k.Info(); !errors.Is(err, ErrKernel) {
		t.Errorf("Info() with a statement binding one of two monitored dimensions: error = %v, want ErrKernel", err)
	}
	k.Statements = k.Statements[:1]

	k.Statements[0].Dims[0] = DimSpec{Lo: 3, Hi: 0, Class: "monitor"}
	if _, err := k.Info(); !errors.Is(err, ErrKernel) {
		t.Errorf("Info() with empty bounds: error = %v, want ErrKernel", err)
	}

	k.Statements[0].Dims[0] = DimSpec{Lo: 0, Hi: 3, Class: "diagonal"}
	if _, err := k.Info(); !errors.Is(err, ErrKernel) {
		t.Errorf("Info() with unknown class: error = %v, want ErrKernel", err)
	}
}
