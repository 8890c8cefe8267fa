// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"
)

// ArtifactPattern is the os.CreateTemp pattern of compiled shared objects.
const ArtifactPattern = "acr-runtime-temp-*"

// Args returns the compiler arguments building a shared object at out from
// source read on standard input. flags come first; the flags making the
// result loadable are always appended.
func Args(flags []string, out string) []string {
	args := make([]string, 0, len(flags)+9)
	args = append(args, flags...)
	return append(args, "-fPIC", "-shared", "-I", ".", "-o", out, "-x", "c", "-")
}

// System compiles with the host C compiler in a subprocess.
type System struct {
	// Compiler is the compiler executable, looked up in PATH.
	Compiler string

	// Flags precede the required shared-object flags.
	Flags []string

	// Dir holds the temporary artifacts. Empty means os.TempDir.
	Dir string

	// Loader opens the produced shared objects. Nil means dlopen.
	Loader Loader

	slots *semaphore.Weighted
}

var _ Backend = (*System)(nil)

// NewSystem returns a subprocess backend running at most compileThreads
// compilers at once.
func NewSystem(compiler string, flags []string, compileThreads int) *System {
	return &System{
		Compiler: compiler,
		Flags:    flags,
		slots:    semaphore.NewWeighted(int64(max(compileThreads, 1))),
	}
}

// Name implements Backend.
func (s *System) Name() string { return "cc" }

// Compile implements Backend. The artifact is removed on every path: right
// after loading on success, by the deferred cleanup otherwise.
func (s *System) Compile(ctx context.Context, req Request) (*Module, error) {
	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.slots.Release(1)
	}

	f, err := os.CreateTemp(s.Dir, ArtifactPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: create artifact: %w", ErrToolchain, err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: create artifact: %w", ErrToolchain, err)
	}
	defer os.Remove(path)

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Compiler, Args(s.Flags, path)...)
	cmd.Stdin = strings.NewReader(req.Source)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CompileError{
				Compiler: s.Compiler,
				Status:   exitErr.ExitCode(),
				Signaled: exitErr.ExitCode() == -1,
				Output:   output.String(),
			}
		}
		return nil, fmt.Errorf("%w: run %s: %w", ErrToolchain, s.Compiler, err)
	}

	loader := s.Loader
	if loader == nil {
		loader = defaultLoader()
	}
	lib, err := loader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrToolchain, err)
	}
	// The mapping outlives the file.
	os.Remove(path)

	addr, err := lib.Symbol(req.Symbol)
	if err != nil {
		lib.Close()
		return nil, fmt.Errorf("%w: %w", ErrToolchain, err)
	}
	return NewModule(Native(req.Symbol, req.Arity, addr), path, lib.Close), nil
}
