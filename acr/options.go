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
	"io"
	"log/slog"

	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
)

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	backend   compile.Backend
	sampler   monitor.Sampler
	data      []float64
	quantizer monitor.Quantizer
	initial   *compile.Func
	fatal     func(error)
	exit      func(int)
	stderr    io.Writer
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBackend replaces the compilation backend selected by Config.Backend.
// The runtime does not close a backend given this way.
func WithBackend(b compile.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithSampler sets the function filling the per-tile monitor sample.
func WithSampler(s monitor.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithMonitoredData samples data, a dense row-major array shaped like the
// monitored dimensions, with the kernel's reduction. A nil quantizer clamps
// the reduced values to [0, 255].
func WithMonitoredData(data []float64, q monitor.Quantizer) Option {
	return func(o *options) { o.data, o.quantizer = data, q }
}

// WithInitial sets the kernel run until the first specialization is ready,
// normally the original, unspecialized kernel.
func WithInitial(f *compile.Func) Option {
	return func(o *options) { o.initial = f }
}

// WithFatal replaces the handler of unrecoverable coordinator errors. The
// default logs the error and exits the process.
func WithFatal(fn func(error)) Option {
	return func(o *options) { o.fatal = fn }
}

// withExit replaces os.Exit and os.Stderr.
func withExit(exit func(int), stderr io.Writer) Option {
	return func(o *options) { o.exit, o.stderr = exit, stderr }
}
