// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package compile

// Library is a loaded shared object.
type Library interface {
	// Symbol resolves a symbol to its address.
	Symbol(name string) (uintptr, error)

	// Close unloads the library.
	Close() error
}

// Loader opens shared objects.
type Loader interface {
	Open(path string) (Library, error)
}
