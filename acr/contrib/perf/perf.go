// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package perf records the run-length encoded history of the kernel variants
// used during a run.
//
// Every variant covers a closed interval of kernel steps. Only the head (the
// last appended variant) is ever extended, so the intervals of a history are
// disjoint, contiguous and in creation order. At teardown the history is
// written as a stand-alone C function replaying the exact sequence of loop
// bodies, then every variant's module is released.
package perf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
)

// ReplaySymbol is the name of the generated replay function.
const ReplaySymbol = "acr_perf_function"

// ReplayPattern is the os.CreateTemp pattern of replay files.
const ReplayPattern = "acr_perf_*.c"

// Variant is one generated and loaded specialization of the kernel.
type Variant struct {
	// StartingAt and EndingAt bound the steps that ran this variant.
	StartingAt int64
	EndingAt   int64

	// Body is the generated loop body; Source the full translation unit.
	Body   string
	Source string

	Sample monitor.Sample
	Module *compile.Module
}

// Steps returns the number of steps covered by the variant.
func (v *Variant) Steps() int64 {
	return v.EndingAt - v.StartingAt + 1
}

// Cache is the variant history. It is owned by the coordinator and is not
// safe for concurrent use.
type Cache struct {
	entries []*Variant
}

// Head returns the most recent variant, or nil for an empty history.
func (c *Cache) Head() *Variant {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

// Append makes v the new head.
func (c *Cache) Append(v *Variant) {
	c.entries = append(c.entries, v)
}

// Extend adds n steps to the head's interval. It reports false for an empty
// history.
func (c *Cache) Extend(n int64) bool {
	head := c.Head()
	if head == nil {
		return false
	}
	head.EndingAt += n
	return true
}

// Len returns the number of variants.
func (c *Cache) Len() int { return len(c.entries) }

// Entries returns the history in creation order.
func (c *Cache) Entries() []*Variant {
	return append([]*Variant(nil), c.entries...)
}

// WriteReplay writes the replay function: each variant's body, repeated once
// per step it covered. prototype is the kernel's parameter list with its
// parentheses.
func (c *Cache) WriteReplay(w io.Writer, prototype string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "#include <stdlib.h>\nvoid %s%s {\n", ReplaySymbol, prototype)
	for _, v := range c.entries {
		repeat := v.StartingAt != v.EndingAt
		if repeat {
			fmt.Fprintf(&b, "for (size_t acr_replay_i = 0; acr_replay_i < %d; ++acr_replay_i) {\n", v.Steps())
		}
		fmt.Fprintf(&b, "{\n%s}\n", v.Body)
		if repeat {
			b.WriteString("}\n")
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteReplayFile writes the replay function to a new uniquely named file in
// dir and returns its path. An empty dir means the working directory.
func (c *Cache) WriteReplayFile(dir, prototype string) (string, error) {
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, ReplayPattern)
	if err != nil {
		return "", fmt.Errorf("perf: create replay file: %w", err)
	}
	if err := c.WriteReplay(f, prototype); err != nil {
		f.Close()
		return f.Name(), fmt.Errorf("perf: write replay: %w", err)
	}
	return f.Name(), f.Close()
}

// Close releases every variant's module and empties the history.
func (c *Cache) Close() error {
	var errs []error
	for _, v := range c.entries {
		if v.Module == nil {
			continue
		}
		if err := v.Module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("perf: release variant [%d, %d]: %w", v.StartingAt, v.EndingAt, err))
		}
	}
	c.entries = nil
	return errors.Join(errs...)
}
