// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package perf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
)

func TestExtendHead(t *testing.T) {
	var c Cache
	if c.Extend(1) {
		t.Errorf("Extend() on empty cache = true")
	}
	c.Append(&Variant{StartingAt: 0, EndingAt: 0, Sample: monitor.Sample{1}})
	c.Append(&Variant{StartingAt: 1, EndingAt: 1, Sample: monitor.Sample{2}})
	require.True(t, c.Extend(3))

	entries := c.Entries()
	require.Len(t, entries, 2)
	if entries[0].EndingAt != 0 {
		t.Errorf("history entry changed: EndingAt = %d, want 0", entries[0].EndingAt)
	}
	if got := c.Head().Steps(); got != 4 {
		t.Errorf("Head().Steps() = %d, want 4", got)
	}
}

func TestWriteReplay(t *testing.T) {
	var c Cache
	c.Append(&Variant{StartingAt: 0, EndingAt: 2, Body: "A[0] = 1;\n"})
	c.Append(&Variant{StartingAt: 3, EndingAt: 3, Body: "A[0] = 2;\n"})

	var b strings.Builder
	require.NoError(t, c.WriteReplay(&b, "(double *A)"))
	want := "#include <stdlib.h>\n" +
		"void acr_perf_function(double *A) {\n" +
		"for (size_t acr_replay_i = 0; acr_replay_i < 3; ++acr_replay_i) {\n" +
		"{\nA[0] = 1;\n}\n" +
		"}\n" +
		"{\nA[0] = 2;\n}\n" +
		"}\n"
	if b.String() != want {
		t.Errorf("WriteReplay() =\n%s\nwant\n%s", b.String(), want)
	}
}

func TestWriteReplayFile(t *testing.T) {
	var c Cache
	c.Append(&Variant{StartingAt: 0, EndingAt: 0, Body: "f();\n"})

	dir := t.TempDir()
	path, err := c.WriteReplayFile(dir, "()")
	require.NoError(t, err)
	if ok, _ := filepath.Match(filepath.Join(dir, ReplayPattern), path); !ok {
		t.Errorf("replay path %q does not match %s", path, ReplayPattern)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if !strings.Contains(string(data), "void acr_perf_function() {") {
		t.Errorf("replay file content:\n%s", data)
	}
}

func TestCloseReleasesOnce(t *testing.T) {
	var c Cache
	released := map[int]int{}
	for i := range 3 {
		m := compile.NewModule(compile.NewFunc("f", 0, func(...uintptr) {}), "", func() error {
			released[i]++
			if i == 1 {
				return errors.New("dlclose failed")
			}
			return nil
		})
		c.Append(&Variant{StartingAt: int64(i), EndingAt: int64(i), Module: m})
	}
	c.Append(&Variant{StartingAt: 3, EndingAt: 3})

	err := c.Close()
	require.Error(t, err)
	if !strings.Contains(err.Error(), "[1, 1]") {
		t.Errorf("Close() error = %v, want it to name variant [1, 1]", err)
	}
	require.NoError(t, c.Close())
	for i := range 3 {
		if released[i] != 1 {
			t.Errorf("module %d released %d times, want 1", i, released[i])
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", c.Len())
	}
}
