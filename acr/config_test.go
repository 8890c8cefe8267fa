// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package acr

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseThreads(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"4", 4, false},
		{"  8", 8, false},
		{"0", 1, false},
		{"-3", 3, false},
		{"+2", 2, false},
		{"12abc", 12, false},
		{"abc", 7, true},
		{"", 7, true},
	}
	for _, tt := range tests {
		got, err := ParseThreads(tt.in, 7)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseThreads(%q, 7) = %d, %v, want %d (err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseCFlags(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", []string{"-O2"}, false},
		{"-O3", []string{"-O3"}, false},
		{"-O3:-march=native", []string{"-O3", "-march=native"}, false},
		{"-O3:-g:", []string{"-O3", "-g"}, false},
		{":-O3", []string{"-O2"}, true},
		{"-O3::-g", []string{"-O2"}, true},
		{":", []string{"-O2"}, true},
	}
	for _, tt := range tests {
		got, err := ParseCFlags(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCFlags(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseCFlags(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func lookupMap(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestConfigFromLookup(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cfg := configFromLookup("HEAT", lookupMap(map[string]string{
		"HEAT_GEN_THREADS":           "-4",
		"HEAT_COMPILE_THREADS":       "0",
		"HEAT_EXTRA_CFLAGS":          "-O3:-ffast-math",
		"HEAT_BACKEND":               "TCC",
		"HEAT_LIBTCC":                "/opt/tcc/libtcc.so",
		"HEAT_SYNC":                  "1",
		"HEAT_STATS":                 "yes",
		"HEAT_CHECK":                 "false",
		"HEAT_INIT_GET_INFO_AND_DIE": "",
		"CC":                         "clang",
	}), logger)

	want := Config{
		Prefix:         "HEAT",
		GenThreads:     4,
		CompileThreads: 1,
		CFlags:         []string{"-O3", "-ffast-math"},
		Compiler:       "clang",
		Backend:        BackendTCC,
		LibTCC:         "/opt/tcc/libtcc.so",
		Mode:           Sync,
		Stats:          true,
		InfoAndDie:     true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("configFromLookup() mismatch (-want +got):\n%s", diff)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings:\n%s", logs.String())
	}
}

func TestConfigFromLookupFallbacks(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cfg := configFromLookup("", lookupMap(map[string]string{
		"ACR_GEN_THREADS":     "many",
		"ACR_COMPILE_THREADS": "x",
		"ACR_EXTRA_CFLAGS":    "::",
		"ACR_BACKEND":         "gcc",
	}), logger)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("configFromLookup() mismatch (-want +got):\n%s", diff)
	}
	for _, v := range []string{"ACR_GEN_THREADS", "ACR_COMPILE_THREADS", "ACR_EXTRA_CFLAGS", "ACR_BACKEND"} {
		if !strings.Contains(logs.String(), v) {
			t.Errorf("no warning for %s in:\n%s", v, logs.String())
		}
	}
}
