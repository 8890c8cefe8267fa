// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || freebsd || linux || netbsd)

package compile

import (
	"context"
	"fmt"
	"runtime"
)

// Memory is unavailable on this platform.
type Memory struct{}

// NewMemory always fails on this platform.
func NewMemory(path string, flags []string) (*Memory, error) {
	return nil, fmt.Errorf("%w: libtcc is not supported on %s", ErrToolchain, runtime.GOOS)
}

func (m *Memory) Name() string { return "tcc" }

func (m *Memory) Compile(ctx context.Context, req Request) (*Module, error) {
	return nil, fmt.Errorf("%w: libtcc is not supported on %s", ErrToolchain, runtime.GOOS)
}

func (m *Memory) Close() error { return nil }
