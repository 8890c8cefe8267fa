// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// TableSize is the number of distinct sampled values.
const TableSize = 256

// ErrTable is returned for strategy lists that cannot form a selection table.
var ErrTable = errors.New("strategy: invalid selection table")

// Strategy maps the closed range of sampled values [Lo, Hi] to the
// alternative with index Alternative.
type Strategy struct {
	Lo, Hi      int
	Alternative int
}

// Table maps every sampled byte to an alternative.
type Table struct {
	entries [TableSize]*Alternative
	lo, hi  int
}

// NewTable builds the selection table. Strategies may be given in any order;
// once sorted their ranges must be non-empty, within [0, 255], free of
// overlaps and free of gaps. Values below the first range select its
// alternative, values above the last range select the last one.
func NewTable(strategies []Strategy, alternatives []*Alternative) (*Table, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategy", ErrTable)
	}
	sorted := slices.Clone(strategies)
	slices.SortStableFunc(sorted, func(a, b Strategy) int { return a.Lo - b.Lo })

	t := &Table{lo: sorted[0].Lo, hi: sorted[len(sorted)-1].Hi}
	for i, s := range sorted {
		if s.Lo > s.Hi || s.Lo < 0 || s.Hi >= TableSize {
			return nil, fmt.Errorf("%w: range [%d, %d] is outside [0, %d]", ErrTable, s.Lo, s.Hi, TableSize-1)
		}
		if s.Alternative < 0 || s.Alternative >= len(alternatives) || alternatives[s.Alternative] == nil {
			return nil, fmt.Errorf("%w: range [%d, %d] selects unknown alternative %d", ErrTable, s.Lo, s.Hi, s.Alternative)
		}
		if i > 0 {
			prev := sorted[i-1]
			if s.Lo <= prev.Hi {
				return nil, fmt.Errorf("%w: value %d is claimed by ranges [%d, %d] and [%d, %d]",
					ErrTable, s.Lo, prev.Lo, prev.Hi, s.Lo, s.Hi)
			}
			if s.Lo != prev.Hi+1 {
				return nil, fmt.Errorf("%w: values [%d, %d] select no alternative", ErrTable, prev.Hi+1, s.Lo-1)
			}
		}
		for v := s.Lo; v <= s.Hi; v++ {
			t.entries[v] = alternatives[s.Alternative]
		}
	}
	return t, nil
}

// Lookup returns the alternative selected by the sampled value v.
func (t *Table) Lookup(v byte) *Alternative {
	return t.entries[min(max(int(v), t.lo), t.hi)]
}

// Span returns the range of values covered by strategies.
func (t *Table) Span() (lo, hi int) {
	return t.lo, t.hi
}

// Alternatives returns the distinct alternatives reachable from the table,
// ordered by index.
func (t *Table) Alternatives() []*Alternative {
	alts := lo.Uniq(lo.Compact(t.entries[:]))
	slices.SortFunc(alts, func(a, b *Alternative) int { return a.Index - b.Index })
	return alts
}
