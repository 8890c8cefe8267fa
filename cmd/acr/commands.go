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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-acr/acr"
	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
	"github.com/ajroetker/go-acr/acr/contrib/perf"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info KERNEL",
		Short: "Print the tiling of a kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := acr.LoadKernel(args[0])
			if err != nil {
				return err
			}
			info, err := k.Info()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "symbol:       %s\n", info.Symbol)
			fmt.Fprintf(w, "parameters:   %d\n", info.Arity)
			fmt.Fprintf(w, "grid size:    %d\n", k.Grid)
			for j, b := range info.Bounds {
				fmt.Fprintf(w, "dimension %d:  [%d, %d], %d tiles\n", j, b.Lo, b.Hi, info.Counts[j])
			}
			fmt.Fprintf(w, "tiles:        %d\n", info.Tiles)
			fmt.Fprintf(w, "min extent:   %d\n", info.MinExtent)
			for _, a := range info.Alternatives {
				fmt.Fprintf(w, "alternative   %s\n", a)
			}
			return nil
		},
	}
}

func newGenCmd() *cobra.Command {
	var sample, output string
	cmd := &cobra.Command{
		Use:   "gen KERNEL",
		Short: "Print the kernel specialized for a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := open(cmd, args[0])
			if err != nil {
				return err
			}
			defer rt.Close()
			s, err := parseSample(sample)
			if err != nil {
				return err
			}
			src, err := rt.Generate(s)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), src)
				return err
			}
			return os.WriteFile(output, []byte(src), 0o644)
		},
	}
	cmd.Flags().StringVarP(&sample, "sample", "s", "", "comma-separated byte per tile (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the source to this file instead of stdout")
	cmd.MarkFlagRequired("sample")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var sample string
	var build bool
	cmd := &cobra.Command{
		Use:   "check KERNEL",
		Short: "Parse, and optionally compile, the kernel specialized for a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, k, err := open(cmd, args[0])
			if err != nil {
				return err
			}
			defer rt.Close()
			s, err := parseSample(sample)
			if err != nil {
				return err
			}
			src, err := rt.Generate(s)
			if err != nil {
				return err
			}
			if err := compile.Check(k.Name+".c", src); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: parsed\n", k.Symbol())
			if !build {
				return nil
			}

			cfg := rt.Config()
			arity, _ := k.Arity()
			backend := compile.NewSystem(cfg.Compiler, cfg.CFlags, 1)
			m, err := backend.Compile(context.Background(), compile.Request{Symbol: k.Symbol(), Arity: arity, Source: src})
			if err != nil {
				var ce *compile.CompileError
				if errors.As(err, &ce) {
					return fmt.Errorf("%s %s: %s", cfg.Compiler, strings.Join(compile.Args(cfg.CFlags, "<artifact>"), " "), ce.Output)
				}
				return err
			}
			defer m.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: compiled and loaded with %s\n", k.Symbol(), cfg.Compiler)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sample, "sample", "s", "", "comma-separated byte per tile (required)")
	cmd.Flags().BoolVar(&build, "compile", false, "also build and load the source with the system compiler")
	cmd.MarkFlagRequired("sample")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var samples []string
	cmd := &cobra.Command{
		Use:   "replay KERNEL",
		Short: "Print the replay function of a sequence of samples, one per step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, k, err := open(cmd, args[0])
			if err != nil {
				return err
			}
			defer rt.Close()

			var cache perf.Cache
			for step, arg := range samples {
				s, err := parseSample(arg)
				if err != nil {
					return err
				}
				if head := cache.Head(); head != nil && head.Sample.Equal(s) {
					cache.Extend(1)
					continue
				}
				body, err := rt.Body(s)
				if err != nil {
					return err
				}
				cache.Append(&perf.Variant{
					StartingAt: int64(step),
					EndingAt:   int64(step),
					Body:       body,
					Sample:     append(monitor.Sample(nil), s...),
				})
			}
			return cache.WriteReplay(cmd.OutOrStdout(), k.Prototype)
		},
	}
	cmd.Flags().StringArrayVarP(&samples, "sample", "s", nil, "comma-separated byte per tile, repeated once per step")
	cmd.MarkFlagRequired("sample")
	return cmd
}
