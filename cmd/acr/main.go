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

// Command acr inspects adaptive kernel descriptions offline.
//
// Usage:
//
//	acr info heat.yaml                             # tiling summary
//	acr gen heat.yaml --sample 0,1,0               # specialized C source
//	acr check heat.yaml --sample 0,1,0 --compile   # parse, then build with cc
//	acr replay heat.yaml -s 0,1,0 -s 0,1,0 -s 1,1,1  # replay function of a run
//
// The runtime environment overrides (ACR_EXTRA_CFLAGS, CC, ...) apply to the
// check command.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-acr/acr"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "acr",
		Short:         "Inspect adaptive kernel descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("prefix", acr.DefaultPrefix, "prefix of the environment overrides")
	root.AddCommand(newInfoCmd(), newGenCmd(), newCheckCmd(), newReplayCmd())
	return root
}

// open loads a kernel and builds a runtime for offline generation.
func open(cmd *cobra.Command, path string) (*acr.Runtime, *acr.Kernel, error) {
	k, err := acr.LoadKernel(path)
	if err != nil {
		return nil, nil, err
	}
	prefix, _ := cmd.Flags().GetString("prefix")
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := acr.ConfigFromEnv(prefix, logger)
	cfg.InfoAndDie = false
	cfg.Backend = acr.BackendCC
	rt, err := acr.New(cfg, k, acr.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return rt, k, nil
}

// parseSample parses a comma-separated list of byte values.
func parseSample(s string) (monitor.Sample, error) {
	fields := strings.Split(s, ",")
	sample := make(monitor.Sample, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("sample %q: value %d: %w", s, i, err)
		}
		sample[i] = byte(v)
	}
	return sample, nil
}
