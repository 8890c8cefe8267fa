// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || freebsd || linux || netbsd)

package compile

import (
	"fmt"
	"runtime"
)

// Native returns a function that panics: native calls are not supported on
// this platform.
func Native(symbol string, arity int, addr uintptr) *Func {
	return &Func{
		Symbol: symbol,
		Arity:  arity,
		call: func([]uintptr) {
			panic("compile: native calls are not supported on " + runtime.GOOS)
		},
	}
}

type noLoader struct{}

func (noLoader) Open(path string) (Library, error) {
	return nil, fmt.Errorf("dynamic loading is not supported on %s", runtime.GOOS)
}

func defaultLoader() Loader { return noLoader{} }
