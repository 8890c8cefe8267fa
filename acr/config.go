// Copyright 2025 go-acr Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package acr

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPrefix is the prefix of the environment overrides.
const DefaultPrefix = "ACR"

const (
	// DefaultGenThreads is the default number of code generation workers.
	DefaultGenThreads = 2

	// DefaultCompileThreads is the default number of concurrent compilations.
	DefaultCompileThreads = 1
)

// DefaultCFlags are the compiler flags used when no override is given.
var DefaultCFlags = []string{"-O2"}

// Mode selects how the driver receives newly compiled kernels.
type Mode int

const (
	// Async never delays a kernel step: a new kernel is picked up at the
	// first step end after it is published.
	Async Mode = iota

	// Sync blocks every step end until the coordinator has handled the step,
	// so the next step always runs the kernel specialized for the latest
	// sample.
	Sync
)

func (m Mode) String() string {
	if m == Sync {
		return "sync"
	}
	return "async"
}

// Backend names.
const (
	BackendCC  = "cc"
	BackendTCC = "tcc"
)

// Config is the runtime configuration. It is read-only once passed to New.
type Config struct {
	// Prefix is the prefix of the environment variables the configuration
	// was read from.
	Prefix string

	GenThreads     int
	CompileThreads int

	// CFlags precede the flags required to build a loadable shared object.
	CFlags []string

	// Compiler is the C compiler of the cc backend.
	Compiler string

	// Backend is BackendCC or BackendTCC.
	Backend string

	// LibTCC is the path of libtcc for the tcc backend.
	LibTCC string

	Mode Mode

	// CheckSource parses every generated translation unit before compiling
	// it.
	CheckSource bool

	// Stats prints the statistics report when the runtime is closed.
	Stats bool

	// ReplayDir receives the replay file. Empty means the working directory.
	ReplayDir string

	// InfoAndDie makes New print the minimum monitored extent and exit.
	InfoAndDie bool
}

// DefaultConfig returns the configuration used when no override is set.
func DefaultConfig() Config {
	return Config{
		Prefix:         DefaultPrefix,
		GenThreads:     DefaultGenThreads,
		CompileThreads: DefaultCompileThreads,
		CFlags:         append([]string(nil), DefaultCFlags...),
		Compiler:       "cc",
		Backend:        BackendCC,
		LibTCC:         "libtcc.so",
	}
}

// ConfigFromEnv returns the default configuration with the overrides found
// in the environment:
//
//	<prefix>_GEN_THREADS           code generation workers (default 2)
//	<prefix>_COMPILE_THREADS       concurrent compilations (default 1)
//	<prefix>_EXTRA_CFLAGS          colon-separated compiler flags (default -O2)
//	<prefix>_INIT_GET_INFO_AND_DIE print the minimum monitored extent and exit
//	<prefix>_BACKEND               cc or tcc
//	<prefix>_LIBTCC                path of libtcc
//	<prefix>_SYNC                  block step ends until the step is handled
//	<prefix>_STATS                 print statistics on Close
//	<prefix>_CHECK                 parse generated sources before compiling
//	<prefix>_REPLAY_DIR            directory of the replay file
//	CC                             C compiler of the cc backend
//
// Malformed values fall back to the default and are reported on logger.
func ConfigFromEnv(prefix string, logger *slog.Logger) Config {
	return configFromLookup(prefix, os.LookupEnv, logger)
}

func configFromLookup(prefix string, lookup func(string) (string, bool), logger *slog.Logger) Config {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()
	cfg.Prefix = prefix
	name := func(s string) string { return prefix + "_" + s }

	threads := func(key string, def int) int {
		v, ok := lookup(name(key))
		if !ok {
			return def
		}
		n, err := ParseThreads(v, def)
		if err != nil {
			logger.Warn("bad thread count, using default", "variable", name(key), "value", v, "default", def)
		}
		return n
	}
	cfg.GenThreads = threads("GEN_THREADS", DefaultGenThreads)
	cfg.CompileThreads = threads("COMPILE_THREADS", DefaultCompileThreads)

	if v, ok := lookup(name("EXTRA_CFLAGS")); ok {
		flags, err := ParseCFlags(v)
		if err != nil {
			logger.Warn("malformed compiler flags, using default", "variable", name("EXTRA_CFLAGS"), "value", v, "err", err)
		}
		cfg.CFlags = flags
	}
	if _, ok := lookup(name("INIT_GET_INFO_AND_DIE")); ok {
		cfg.InfoAndDie = true
	}
	if v, ok := lookup(name("BACKEND")); ok {
		switch b := strings.ToLower(strings.TrimSpace(v)); b {
		case BackendCC, BackendTCC:
			cfg.Backend = b
		default:
			logger.Warn("unknown backend, using default", "variable", name("BACKEND"), "value", v, "default", cfg.Backend)
		}
	}
	if v, ok := lookup(name("LIBTCC")); ok && v != "" {
		cfg.LibTCC = v
	}
	if v, ok := lookup("CC"); ok && strings.TrimSpace(v) != "" {
		cfg.Compiler = strings.TrimSpace(v)
	}
	if v, ok := lookup(name("REPLAY_DIR")); ok {
		cfg.ReplayDir = v
	}

	boolean := func(key string) bool {
		v, ok := lookup(name(key))
		if !ok || v == "" {
			return false
		}
		// Any non-empty value enables the flag unless it parses as false.
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return true
	}
	if boolean("SYNC") {
		cfg.Mode = Sync
	}
	cfg.Stats = boolean("STATS")
	cfg.CheckSource = boolean("CHECK")
	return cfg
}

var leadingInt = regexp.MustCompile(`^\s*([+-]?\d+)`)

// ParseThreads parses a thread count. The leading integer of s is used;
// negative counts use their absolute value and zero becomes one. When s does
// not start with an integer, def is returned with an error.
func ParseThreads(s string, def int) (int, error) {
	m := leadingInt.FindStringSubmatch(s)
	if m == nil {
		return def, fmt.Errorf("acr: bad thread count %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return def, fmt.Errorf("acr: bad thread count %q: %w", s, err)
	}
	if n < 0 {
		n = -n
	}
	return max(n, 1), nil
}

// ParseCFlags splits a colon-separated flag list. An empty list yields the
// default flags. An empty element, as in "::" or a leading colon, is
// malformed: the default flags are returned with an error. A trailing colon
// is accepted.
func ParseCFlags(s string) ([]string, error) {
	if s == "" {
		return append([]string(nil), DefaultCFlags...), nil
	}
	parts := strings.Split(strings.TrimSuffix(s, ":"), ":")
	for _, p := range parts {
		if p == "" {
			return append([]string(nil), DefaultCFlags...), fmt.Errorf("acr: malformed flag list %q", s)
		}
	}
	return parts, nil
}
