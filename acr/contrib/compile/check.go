// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

package compile

import (
	"fmt"
	"runtime"
	"sync"

	"modernc.org/cc/v4"
)

// hostConfig queries the host C compiler once for its predefined macros and
// include paths.
var hostConfig = sync.OnceValues(func() (*cc.Config, error) {
	return cc.NewConfig(runtime.GOOS, runtime.GOARCH)
})

// Check preprocesses and parses src as a C translation unit without
// compiling it. A parse failure is a *CompileError; a host configuration
// failure wraps ErrToolchain.
func Check(name, src string) error {
	cfg, err := hostConfig()
	if err != nil {
		return fmt.Errorf("%w: C front end: %w", ErrToolchain, err)
	}
	sources := []cc.Source{
		{Name: "<predefined>", Value: cfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
		{Name: name, Value: src},
	}
	if _, err := cc.Parse(cfg, sources); err != nil {
		return &CompileError{Compiler: "cc/v4", Status: -1, Output: err.Error()}
	}
	return nil
}
