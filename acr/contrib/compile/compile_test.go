// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package compile

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	got := Args([]string{"-O2", "-march=native"}, "/tmp/x.so")
	want := []string{"-O2", "-march=native", "-fPIC", "-shared", "-I", ".", "-o", "/tmp/x.so", "-x", "c", "-"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileErrorUnwrap(t *testing.T) {
	var err error = &CompileError{Compiler: "cc", Status: 1, Output: "x.c:1: error: expected ';'\n"}
	if !errors.Is(err, ErrCompile) {
		t.Errorf("errors.Is(%v, ErrCompile) = false", err)
	}
	if errors.Is(err, ErrToolchain) {
		t.Errorf("errors.Is(%v, ErrToolchain) = true", err)
	}
	want := "compile: cc exited with status 1: x.c:1: error: expected ';'"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestModuleCloseOnce(t *testing.T) {
	calls := 0
	m := NewModule(NewFunc("f", 0, func(...uintptr) {}), "", func() error {
		calls++
		return errors.New("boom")
	})
	for range 3 {
		if err := m.Close(); err == nil || err.Error() != "boom" {
			t.Errorf("Close() = %v, want boom", err)
		}
	}
	if calls != 1 {
		t.Errorf("release called %d times, want 1", calls)
	}
}

func TestFuncCall(t *testing.T) {
	var got []uintptr
	f := NewFunc("f", 2, func(args ...uintptr) { got = args })
	f.Call(3, 4)
	if diff := cmp.Diff([]uintptr{3, 4}, got); diff != "" {
		t.Errorf("Call() args mismatch (-want +got):\n%s", diff)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Call() with 1 argument for arity 2 did not panic")
		}
	}()
	f.Call(1)
}

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found in PATH", name)
	}
	return path
}

func artifacts(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ArtifactPattern))
	require.NoError(t, err)
	return matches
}

func TestSystemCompileFailure(t *testing.T) {
	dir := t.TempDir()
	s := NewSystem(lookPath(t, "false"), []string{"-O2"}, 1)
	s.Dir = dir

	m, err := s.Compile(context.Background(), Request{Symbol: "f", Source: "void f(void) {}\n"})
	require.Nil(t, m)
	require.ErrorIs(t, err, ErrCompile)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	if ce.Status != 1 {
		t.Errorf("Status = %d, want 1", ce.Status)
	}
	if left := artifacts(t, dir); len(left) != 0 {
		t.Errorf("artifacts left behind: %v", left)
	}
}

func TestSystemMissingCompiler(t *testing.T) {
	dir := t.TempDir()
	s := NewSystem(filepath.Join(dir, "no-such-cc"), nil, 1)
	s.Dir = dir

	_, err := s.Compile(context.Background(), Request{Symbol: "f", Source: "void f(void) {}\n"})
	require.ErrorIs(t, err, ErrToolchain)
	if left := artifacts(t, dir); len(left) != 0 {
		t.Errorf("artifacts left behind: %v", left)
	}
}

func TestSystemMissingArtifactDir(t *testing.T) {
	s := NewSystem("cc", nil, 1)
	s.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := s.Compile(context.Background(), Request{Symbol: "f"})
	require.ErrorIs(t, err, ErrToolchain)
}

type fakeLibrary struct {
	symbols map[string]uintptr
	closed  int
}

func (l *fakeLibrary) Symbol(name string) (uintptr, error) {
	if addr, ok := l.symbols[name]; ok {
		return addr, nil
	}
	return 0, errors.New("undefined symbol " + name)
}

func (l *fakeLibrary) Close() error {
	l.closed++
	return nil
}

type fakeLoader struct {
	lib    *fakeLibrary
	opened []string
}

func (l *fakeLoader) Open(path string) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	l.opened = append(l.opened, path)
	return l.lib, nil
}

func TestSystemLoad(t *testing.T) {
	dir := t.TempDir()
	loader := &fakeLoader{lib: &fakeLibrary{symbols: map[string]uintptr{"heat_acr_function": 0x1000}}}
	s := NewSystem(lookPath(t, "true"), nil, 2)
	s.Dir = dir
	s.Loader = loader

	m, err := s.Compile(context.Background(), Request{Symbol: "heat_acr_function", Arity: 3})
	require.NoError(t, err)
	require.Len(t, loader.opened, 1)
	if m.Artifact != loader.opened[0] {
		t.Errorf("Artifact = %q, want %q", m.Artifact, loader.opened[0])
	}
	if m.Func.Symbol != "heat_acr_function" || m.Func.Arity != 3 {
		t.Errorf("Func = %s/%d, want heat_acr_function/3", m.Func.Symbol, m.Func.Arity)
	}
	if left := artifacts(t, dir); len(left) != 0 {
		t.Errorf("artifact not removed after loading: %v", left)
	}

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	if loader.lib.closed != 1 {
		t.Errorf("library closed %d times, want 1", loader.lib.closed)
	}
}

func TestSystemMissingSymbol(t *testing.T) {
	dir := t.TempDir()
	loader := &fakeLoader{lib: &fakeLibrary{}}
	s := NewSystem(lookPath(t, "true"), nil, 1)
	s.Dir = dir
	s.Loader = loader

	_, err := s.Compile(context.Background(), Request{Symbol: "missing"})
	require.ErrorIs(t, err, ErrToolchain)
	if loader.lib.closed != 1 {
		t.Errorf("library closed %d times, want 1", loader.lib.closed)
	}
	if left := artifacts(t, dir); len(left) != 0 {
		t.Errorf("artifacts left behind: %v", left)
	}
}

func TestSystemCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSystem("cc", nil, 1)
	s.Dir = t.TempDir()

	_, err := s.Compile(ctx, Request{Symbol: "f"})
	require.ErrorIs(t, err, context.Canceled)
}
