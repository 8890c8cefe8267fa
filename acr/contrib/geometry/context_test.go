// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func stencil() Domain {
	return NewDomain([]string{"i", "j"}, []Dim{
		{Range: Range{0, 9}, Class: MonitorBound, Monitor: 0},
		{Range: Range{0, 3}, Class: Free, Monitor: -1},
	})
}

func TestRangeIntersect(t *testing.T) {
	tests := []struct {
		a, b Range
		want Range
		len  int64
	}{
		{Range{0, 9}, Range{4, 7}, Range{4, 7}, 4},
		{Range{0, 9}, Range{8, 11}, Range{8, 9}, 2},
		{Range{0, 3}, Range{4, 7}, Range{4, 3}, 0},
	}
	for _, tt := range tests {
		got := tt.a.Intersect(tt.b)
		if got != tt.want {
			t.Errorf("%v.Intersect(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got.Len() != tt.len {
			t.Errorf("%v.Len() = %d, want %d", got, got.Len(), tt.len)
		}
	}
}

func TestSpecialize(t *testing.T) {
	ctx := NewContext()

	full, err := ctx.Specialize(stencil(), ShapeFull)
	if err != nil {
		t.Fatalf("Specialize(full) error = %v", err)
	}
	if diff := cmp.Diff(stencil(), full, cmp.AllowUnexported(Domain{})); diff != "" {
		t.Errorf("Specialize(full) changed the domain (-want +got):\n%s", diff)
	}

	zero, err := ctx.Specialize(stencil(), ShapeZero)
	if err != nil {
		t.Fatalf("Specialize(zero) error = %v", err)
	}
	if !zero.IsEmpty() {
		t.Errorf("Specialize(zero).IsEmpty() = false, want true")
	}

	corner, err := ctx.Specialize(stencil(), ShapeCorner)
	if err != nil {
		t.Fatalf("Specialize(corner) error = %v", err)
	}
	if !corner.Dims[0].Corners || corner.Dims[1].Corners {
		t.Errorf("Specialize(corner) corners = [%v %v], want [true false]", corner.Dims[0].Corners, corner.Dims[1].Corners)
	}
}

func TestSpecializeWithoutMonitorDims(t *testing.T) {
	ctx := NewContext()
	d := NewDomain([]string{"k"}, []Dim{{Range: Range{0, 4}, Monitor: -1}})
	got, err := ctx.Specialize(d, ShapeZero)
	if err != nil {
		t.Fatalf("Specialize error = %v", err)
	}
	if got.IsEmpty() {
		t.Errorf("zero shape emptied a statement without monitor-bound dimensions")
	}
}

func TestSpecializeMalformed(t *testing.T) {
	ctx := NewContext()
	tests := []struct {
		name string
		d    Domain
	}{
		{"IteratorCount", NewDomain([]string{"i"}, nil)},
		{"EmptyBounds", NewDomain([]string{"i"}, []Dim{{Range: Range{5, 1}, Monitor: -1}})},
		{"NoMonitor", NewDomain([]string{"i"}, []Dim{{Range: Range{0, 1}, Class: MonitorBound, Monitor: -1}})},
		{"Duplicate", NewDomain([]string{"i", "i"}, []Dim{{Range: Range{0, 1}, Monitor: -1}, {Range: Range{0, 1}, Monitor: -1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ctx.Specialize(tt.d, ShapeFull); !errors.Is(err, ErrMalformed) {
				t.Errorf("Specialize() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestRestrictDoesNotMutateInput(t *testing.T) {
	ctx := NewContext()
	d := stencil()
	got := ctx.Restrict(d, []Range{{8, 11}})
	if got.Dims[0].Range != (Range{8, 9}) {
		t.Errorf("Restrict() dim 0 = %v, want [8 9]", got.Dims[0].Range)
	}
	if d.Dims[0].Range != (Range{0, 9}) {
		t.Errorf("Restrict() mutated its input: %v", d.Dims[0].Range)
	}
}

func TestLexBounds(t *testing.T) {
	ctx := NewContext()
	lo, hi, err := ctx.LexBounds(stencil(), 1)
	if err != nil || lo != 0 || hi != 3 {
		t.Errorf("LexBounds(dim 1) = %d, %d, %v, want 0, 3, nil", lo, hi, err)
	}
	if _, _, err := ctx.LexBounds(stencil(), 2); err == nil {
		t.Errorf("LexBounds(dim 2) error = nil, want error")
	}
}

func TestPrintLoopNest(t *testing.T) {
	ctx := NewContext()
	var b strings.Builder
	d := ctx.Restrict(stencil(), []Range{{4, 7}})
	if err := ctx.PrintLoopNest(&b, d, "A[i][j] = 0;"); err != nil {
		t.Fatal(err)
	}
	want := "for (long i = 4; i <= 7; ++i) {\n" +
		"  for (long j = 0; j <= 3; ++j) {\n" +
		"    A[i][j] = 0;\n" +
		"  }\n" +
		"}\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("PrintLoopNest() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintLoopNestCorners(t *testing.T) {
	ctx := NewContext()
	corner, err := ctx.Specialize(stencil(), ShapeCorner)
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	if err := ctx.PrintLoopNest(&b, ctx.Restrict(corner, []Range{{4, 7}}), "f(i, j);"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "for (long i = 4; i <= 7; i += 3) {") {
		t.Errorf("corner loop nest = %q, want a stride-3 loop over i", b.String())
	}

	b.Reset()
	if err := ctx.PrintLoopNest(&b, ctx.Restrict(corner, []Range{{9, 11}}), "f(i, j);"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "for (long i = 9; i <= 9; ++i) {") {
		t.Errorf("single-point corner loop nest = %q", b.String())
	}
}

func TestPrintLoopNestEmpty(t *testing.T) {
	ctx := NewContext()
	zero, err := ctx.Specialize(stencil(), ShapeZero)
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	if err := ctx.PrintLoopNest(&b, ctx.Restrict(zero, []Range{{0, 3}}), "A[i][j] = 0;"); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Errorf("PrintLoopNest(empty) wrote %q, want nothing", b.String())
	}
}

// everyTile runs the given domain in every tile.
type everyTile struct{ d Domain }

func (p everyTile) Domain([]int) Domain { return p.d }

func (p everyTile) Emit(cell []int) (string, string) { return "", "f(i, j);" }

func TestPrintUnionSplitsAtTiles(t *testing.T) {
	ctx := NewContext()
	var b strings.Builder
	cuts := [][]Range{{{0, 4}, {5, 9}}}
	if err := ctx.PrintUnion(&b, stencil(), cuts, everyTile{stencil()}); err != nil {
		t.Fatal(err)
	}
	want := "for (long i = 0; i <= 4; ++i) {\n" +
		"  for (long j = 0; j <= 3; ++j) {\n" +
		"    f(i, j);\n" +
		"  }\n" +
		"}\n" +
		"for (long i = 5; i <= 9; ++i) {\n" +
		"  for (long j = 0; j <= 3; ++j) {\n" +
		"    f(i, j);\n" +
		"  }\n" +
		"}\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("PrintUnion() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintUnionBinding(t *testing.T) {
	ctx := NewContext()
	var b strings.Builder
	twoDims := [][]Range{{{0, 9}}, {{0, 3}}}
	if err := ctx.PrintUnion(&b, stencil(), twoDims, everyTile{stencil()}); !errors.Is(err, ErrMalformed) {
		t.Errorf("PrintUnion() with an unbound monitored dimension: error = %v, want ErrMalformed", err)
	}
	if err := ctx.PrintUnion(&b, stencil(), nil, everyTile{stencil()}); !errors.Is(err, ErrMalformed) {
		t.Errorf("PrintUnion() without cuts: error = %v, want ErrMalformed", err)
	}
	if b.Len() != 0 {
		t.Errorf("PrintUnion() wrote %q on error", b.String())
	}
}
