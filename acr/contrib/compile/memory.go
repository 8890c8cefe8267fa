// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

//go:build darwin || freebsd || linux || netbsd

package compile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

const (
	tccOutputMemory = 1

	// TCC_RELOCATE_AUTO: libtcc allocates and owns the executable memory.
	tccRelocateAuto = 1
)

// Memory compiles in process with libtcc, loaded at run time.
type Memory struct {
	lib     uintptr
	options string

	// libtcc keeps global state across TCCState instances.
	mu sync.Mutex

	tccNew            func() uintptr
	tccDelete         func(s uintptr)
	tccSetOptions     func(s uintptr, opts string)
	tccSetOutputType  func(s uintptr, typ int32) int32
	tccAddIncludePath func(s uintptr, path string) int32
	tccCompileString  func(s uintptr, src string) int32
	tccRelocate       func(s uintptr, ptr uintptr) int32
	tccGetSymbol      func(s uintptr, name string) uintptr
}

var _ Backend = (*Memory)(nil)

// NewMemory loads libtcc from path. flags are passed to tcc_set_options.
func NewMemory(path string, flags []string) (*Memory, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: load libtcc: %w", ErrToolchain, err)
	}
	m := &Memory{lib: lib, options: strings.Join(flags, " ")}
	bindings := []struct {
		fptr any
		name string
	}{
		{&m.tccNew, "tcc_new"},
		{&m.tccDelete, "tcc_delete"},
		{&m.tccSetOptions, "tcc_set_options"},
		{&m.tccSetOutputType, "tcc_set_output_type"},
		{&m.tccAddIncludePath, "tcc_add_include_path"},
		{&m.tccCompileString, "tcc_compile_string"},
		{&m.tccRelocate, "tcc_relocate"},
		{&m.tccGetSymbol, "tcc_get_symbol"},
	}
	for _, b := range bindings {
		addr, err := purego.Dlsym(lib, b.name)
		if err != nil {
			purego.Dlclose(lib)
			return nil, fmt.Errorf("%w: libtcc: %w", ErrToolchain, err)
		}
		purego.RegisterFunc(b.fptr, addr)
	}
	return m, nil
}

// Name implements Backend.
func (m *Memory) Name() string { return "tcc" }

// Compile implements Backend.
func (m *Memory) Compile(ctx context.Context, req Request) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.tccNew()
	if s == 0 {
		return nil, fmt.Errorf("%w: tcc_new failed", ErrToolchain)
	}
	release := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.tccDelete(s)
		return nil
	}

	if m.options != "" {
		m.tccSetOptions(s, m.options)
	}
	m.tccSetOutputType(s, tccOutputMemory)
	m.tccAddIncludePath(s, ".")
	if m.tccCompileString(s, req.Source) < 0 {
		m.tccDelete(s)
		return nil, &CompileError{Compiler: "tcc", Status: -1}
	}
	if m.tccRelocate(s, tccRelocateAuto) < 0 {
		m.tccDelete(s)
		return nil, fmt.Errorf("%w: tcc_relocate failed", ErrToolchain)
	}
	addr := m.tccGetSymbol(s, req.Symbol)
	if addr == 0 {
		m.tccDelete(s)
		return nil, fmt.Errorf("%w: symbol %s not found", ErrToolchain, req.Symbol)
	}
	return NewModule(Native(req.Symbol, req.Arity, addr), "", release), nil
}

// Close unloads libtcc. Modules compiled by m must be closed first.
func (m *Memory) Close() error {
	return purego.Dlclose(m.lib)
}
