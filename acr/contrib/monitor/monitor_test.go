// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ajroetker/go-acr/acr/contrib/geometry"
	"github.com/ajroetker/go-acr/acr/contrib/grid"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want byte
	}{
		{-3, 0},
		{0.9, 0},
		{1.5, 1},
		{254.99, 254},
		{1e9, 255},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReducer1D(t *testing.T) {
	g, err := grid.New(4, []geometry.Range{{Lo: 0, Hi: 9}})
	if err != nil {
		t.Fatal(err)
	}
	data := []float64{0, 1, 2, 3, 10, 11, 12, 13, 7, 9}

	tests := []struct {
		reduction Reduction
		want      Sample
	}{
		{Max, Sample{3, 13, 9}},
		{Min, Sample{0, 10, 7}},
		{Avg, Sample{1, 11, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.reduction.String(), func(t *testing.T) {
			r, err := NewReducer(g, tt.reduction, data, nil)
			if err != nil {
				t.Fatal(err)
			}
			got := make(Sample, g.Total())
			r.Sample(got)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Sample() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReducer2D(t *testing.T) {
	// 3x5 array, origin (1, 0), tiles of 2: tile rows [1,2] [3,3], columns [0,1] [2,3] [4,4].
	g, err := grid.New(2, []geometry.Range{{Lo: 1, Hi: 3}, {Lo: 0, Hi: 4}})
	if err != nil {
		t.Fatal(err)
	}
	data := []float64{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, 10,
		11, 12, 13, 14, 15,
	}
	r, err := NewReducer(g, Max, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := make(Sample, g.Total())
	r.Sample(got)
	want := Sample{7, 9, 10, 12, 14, 15}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sample() mismatch (-want +got):\n%s", diff)
	}
}

func TestReducerQuantizer(t *testing.T) {
	g, err := grid.New(2, []geometry.Range{{Lo: 0, Hi: 3}})
	if err != nil {
		t.Fatal(err)
	}
	threshold := func(v float64) byte {
		if v > 0.5 {
			return 1
		}
		return 0
	}
	r, err := NewReducer(g, Avg, []float64{0.1, 0.2, 0.9, 0.8}, threshold)
	if err != nil {
		t.Fatal(err)
	}
	got := make(Sample, 2)
	r.Sample(got)
	if !got.Equal(Sample{0, 1}) {
		t.Errorf("Sample() = %v, want [0 1]", got)
	}
}

func TestNewReducerSizeMismatch(t *testing.T) {
	g, err := grid.New(2, []geometry.Range{{Lo: 0, Hi: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewReducer(g, Max, make([]float64, 3), nil); err == nil {
		t.Errorf("NewReducer() with 3 values for 4 points: error = nil")
	}
}

func TestParseReduction(t *testing.T) {
	for _, s := range []string{"min", "max", "avg"} {
		r, err := ParseReduction(s)
		if err != nil || r.String() != s {
			t.Errorf("ParseReduction(%q) = %v, %v", s, r, err)
		}
	}
	if _, err := ParseReduction("median"); err == nil {
		t.Errorf("ParseReduction(median) error = nil")
	}
}
