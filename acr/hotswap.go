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
	"sync/atomic"

	"github.com/ajroetker/go-acr/acr/contrib/compile"
	"github.com/ajroetker/go-acr/acr/contrib/monitor"
)

// published is a kernel handed to the driver with the sample it was
// specialized for. sample is nil for the initial function.
type published struct {
	fn     *compile.Func
	sample *monitor.Sample
}

// hotSwap hands a compiled kernel from the coordinator to the driver. It is
// a single slot: a kernel published before the previous one was taken
// replaces it.
//
// Go atomics are sequentially consistent, which subsumes the
// release/acquire pairing the handoff needs: everything the coordinator
// wrote before Publish is visible to the driver after Take.
type hotSwap struct {
	cell atomic.Pointer[published]
}

// Publish makes f, specialized for sample, the pending kernel.
func (h *hotSwap) Publish(f *compile.Func, sample *monitor.Sample) {
	h.cell.Store(&published{fn: f, sample: sample})
}

// Take returns and clears the pending kernel, or returns nil.
func (h *hotSwap) Take() *published {
	return h.cell.Swap(nil)
}
