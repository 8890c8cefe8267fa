// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package compile turns generated C source into a loaded, callable kernel
// function.
//
// Two backends are provided. System pipes the source to the host C compiler,
// loads the produced shared object and deletes it from disk right after
// loading. Memory compiles in process with libtcc and never touches the
// filesystem. Both return a Module whose Close unloads the code.
//
// Failures are split in two classes. ErrCompile means the compiler rejected
// the source: the caller keeps its previous function. ErrToolchain means the
// environment is broken (temporary file, process creation, dynamic loading,
// symbol resolution) and the caller should not continue.
package compile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrCompile reports that the compiler rejected the generated source.
	ErrCompile = errors.New("compile: compilation failed")

	// ErrToolchain reports a failure of the compilation environment.
	ErrToolchain = errors.New("compile: toolchain failure")
)

// CompileError is a rejected compilation. It unwraps to ErrCompile.
type CompileError struct {
	Compiler string

	// Status is the exit status of the compiler process, or -1 when there is
	// none (in-process compilers, signals).
	Status   int
	Signaled bool

	// Output holds the compiler diagnostics.
	Output string
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile: %s", e.Compiler)
	switch {
	case e.Signaled:
		b.WriteString(" terminated by a signal")
	case e.Status >= 0:
		fmt.Fprintf(&b, " exited with status %d", e.Status)
	default:
		b.WriteString(" rejected the source")
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString(": ")
		b.WriteString(out)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return ErrCompile }

// Request describes one kernel to compile.
type Request struct {
	// Symbol is the name of the generated function.
	Symbol string

	// Arity is the number of parameters of the generated function.
	Arity int

	// Source is the full translation unit.
	Source string
}

// Backend compiles and loads generated kernels.
type Backend interface {
	// Name identifies the backend in logs and statistics ("cc" or "tcc").
	Name() string

	// Compile compiles req.Source and resolves req.Symbol. Errors wrap
	// ErrCompile, ErrToolchain, or the context error.
	Compile(ctx context.Context, req Request) (*Module, error)
}

// Func is a callable kernel function.
type Func struct {
	Symbol string
	Arity  int
	call   func(args []uintptr)
}

// NewFunc wraps a Go function as a kernel function. It is used for the
// initial, unspecialized kernel and in tests.
func NewFunc(symbol string, arity int, fn func(args ...uintptr)) *Func {
	return &Func{Symbol: symbol, Arity: arity, call: func(args []uintptr) { fn(args...) }}
}

// Call invokes the function. It panics if len(args) differs from the arity.
func (f *Func) Call(args ...uintptr) {
	if len(args) != f.Arity {
		panic(fmt.Sprintf("compile: %s called with %d arguments, want %d", f.Symbol, len(args), f.Arity))
	}
	f.call(args)
}

// Module is a loaded kernel: its function and the handle releasing the code.
type Module struct {
	Func *Func

	// Artifact is the path of the shared object the module was loaded from.
	// It no longer exists once the module is returned. Empty for in-memory
	// modules.
	Artifact string

	release func() error
	once    sync.Once
	err     error
}

// NewModule returns a module whose Close calls release once.
func NewModule(fn *Func, artifact string, release func() error) *Module {
	return &Module{Func: fn, Artifact: artifact, release: release}
}

// Close unloads the module. Later calls return the first result.
func (m *Module) Close() error {
	m.once.Do(func() {
		if m.release != nil {
			m.err = m.release()
		}
	})
	return m.err
}
