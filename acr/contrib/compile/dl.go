// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

//go:build darwin || freebsd || linux || netbsd

package compile

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Native returns the kernel function at addr, called through the platform C
// calling convention. Arguments are passed as machine words.
func Native(symbol string, arity int, addr uintptr) *Func {
	return &Func{
		Symbol: symbol,
		Arity:  arity,
		call: func(args []uintptr) {
			purego.SyscallN(addr, args...)
		},
	}
}

// DlopenLoader loads shared objects with dlopen(RTLD_NOW).
type DlopenLoader struct{}

// Open implements Loader.
func (DlopenLoader) Open(path string) (Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	return dylib(h), nil
}

type dylib uintptr

func (l dylib) Symbol(name string) (uintptr, error) {
	addr, err := purego.Dlsym(uintptr(l), name)
	if err != nil {
		return 0, fmt.Errorf("dlsym %s: %w", name, err)
	}
	return addr, nil
}

func (l dylib) Close() error {
	return purego.Dlclose(uintptr(l))
}

func defaultLoader() Loader { return DlopenLoader{} }
