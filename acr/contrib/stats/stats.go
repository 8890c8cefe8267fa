// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package stats accumulates the time spent in each phase of the adaptive
// runtime and prints the teardown report.
package stats

import (
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Phase is a timed phase of the coordinator.
type Phase int

const (
	// Monitor is the sampling of the monitored region.
	Monitor Phase = iota

	// Geometry is the generation of the loop nests of a variant.
	Geometry

	// CC is a compilation by the system compiler.
	CC

	// TCC is an in-memory compilation by libtcc.
	TCC

	numPhases
)

func (p Phase) String() string {
	switch p {
	case Monitor:
		return "monitor"
	case Geometry:
		return "geometry"
	case CC:
		return "cc"
	case TCC:
		return "tcc"
	default:
		return "unknown"
	}
}

// stepDecay weighs the previous step time in the step time moving average.
const stepDecay = 0.8

// Collector accumulates phase timings. It is safe for concurrent use.
type Collector struct {
	total [numPhases]atomic.Int64
	count [numPhases]atomic.Int64

	kernelTotal atomic.Int64
	kernelCalls atomic.Int64

	mu       sync.Mutex
	stepMean float64
	lastStep time.Time
}

// New returns an empty collector. The step clock starts now.
func New() *Collector {
	return &Collector{lastStep: time.Now()}
}

// Observe adds one measurement of phase p.
func (c *Collector) Observe(p Phase, d time.Duration) {
	c.total[p].Add(int64(d))
	c.count[p].Add(1)
}

// Time starts timing phase p and returns the function ending the
// measurement.
//
//	defer c.Time(stats.Monitor)()
func (c *Collector) Time(p Phase) func() {
	start := time.Now()
	return func() { c.Observe(p, time.Since(start)) }
}

// ObserveKernel adds one kernel call of duration d.
func (c *Collector) ObserveKernel(d time.Duration) {
	c.kernelTotal.Add(int64(d))
	c.kernelCalls.Add(1)
}

// Step marks the end of a kernel step at now and folds the time since the
// previous step into the moving average.
func (c *Collector) Step(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := now.Sub(c.lastStep).Seconds()
	c.stepMean = c.stepMean*stepDecay + d*(1-stepDecay)
	c.lastStep = now
}

// PhaseStats is the accumulated time of one phase.
type PhaseStats struct {
	Total time.Duration
	Count int64
}

// Mean returns the mean duration of the phase, 0 if it never ran.
func (s PhaseStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Snapshot is a consistent-enough copy of the collector's counters.
type Snapshot struct {
	Phases   [numPhases]PhaseStats
	Kernel   PhaseStats
	MeanStep time.Duration
}

// Phase returns the stats of p.
func (s Snapshot) Phase(p Phase) PhaseStats { return s.Phases[p] }

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	var s Snapshot
	for p := range numPhases {
		s.Phases[p] = PhaseStats{Total: time.Duration(c.total[p].Load()), Count: c.count[p].Load()}
	}
	s.Kernel = PhaseStats{Total: time.Duration(c.kernelTotal.Load()), Count: c.kernelCalls.Load()}
	c.mu.Lock()
	s.MeanStep = time.Duration(c.stepMean * float64(time.Second))
	c.mu.Unlock()
	return s
}

func ratio(a, b time.Duration) float64 {
	if b == 0 {
		return 0
	}
	return a.Seconds() / b.Seconds()
}

// Report prints the statistics of kernel to w.
func (c *Collector) Report(w io.Writer, kernel string, genThreads, compileThreads int) error {
	s := c.Snapshot()
	p := message.NewPrinter(language.English)

	total := s.Kernel.Total
	for _, ph := range s.Phases {
		total += ph.Total
	}
	kernelMean := s.Kernel.Mean()

	var b strings.Builder
	line := func(label, format string, args ...any) {
		p.Fprintf(&b, "%29s: "+format+"\n", append([]any{label}, args...)...)
	}
	gap := func() { b.WriteByte('\n') }

	p.Fprintf(&b, "\n############ ACR STATISTICS for %s ############\n\n", kernel)
	line("Host", "%s/%s %s", runtime.GOOS, runtime.GOARCH, cpuFeatures())
	if child, ok := childCPUTime(); ok {
		line("Compiler processes CPU time", "%fs", child.Seconds())
	}
	gap()
	line("Total time spent", "%fs", total.Seconds())
	gap()
	line("Total kernel time", "%fs", s.Kernel.Total.Seconds())
	line("Total kernel calls", "%d", s.Kernel.Count)
	line("Mean time of kernel", "%fs", kernelMean.Seconds())
	line("Mean step time", "%f", s.MeanStep.Seconds())
	gap()
	mon := s.Phase(Monitor)
	line("Total monitoring time", "%fs", mon.Total.Seconds())
	line("Total monitoring loops", "%d", mon.Count)
	line("Mean time spent in monitoring", "%fs", mon.Mean().Seconds())
	gap()
	geo := s.Phase(Geometry)
	line("Number of codegen threads", "%d", genThreads)
	line("Total codegen time", "%fs", geo.Total.Seconds())
	line("Total codegen invocations", "%d", geo.Count)
	line("Mean time spent in codegen", "%fs", geo.Mean().Seconds())
	gap()
	cc := s.Phase(CC)
	line("Number of cc threads", "%d", compileThreads)
	line("Total cc time", "%fs", cc.Total.Seconds())
	line("Total cc invocations", "%d", cc.Count)
	line("Mean time spent in cc", "%fs", cc.Mean().Seconds())
	gap()
	tcc := s.Phase(TCC)
	line("Total tcc time", "%fs", tcc.Total.Seconds())
	line("Total tcc invocations", "%d", tcc.Count)
	line("Mean time spent in tcc", "%fs", tcc.Mean().Seconds())
	gap()
	line("monitor time / frame time", "%f", ratio(mon.Mean(), kernelMean))
	line("codegen time / frame time", "%f", ratio(geo.Mean(), kernelMean))
	line("cc time / frame time", "%f", ratio(cc.Mean(), kernelMean))
	line("tcc time / frame time", "%f", ratio(tcc.Mean(), kernelMean))
	gap()
	line("% of kernel time", "%f%%", 100*ratio(s.Kernel.Total, total))
	line("% of monitor time", "%f%%", 100*ratio(mon.Total, total))
	line("% of codegen time", "%f%%", 100*ratio(geo.Total, total))
	line("% of CC time", "%f%%", 100*ratio(cc.Total, total))
	line("% of TCC time", "%f%%", 100*ratio(tcc.Total, total))
	b.WriteString("\n########################################\n\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// cpuFeatures lists the vector extensions the host compiler may target.
func cpuFeatures() string {
	var f []string
	switch runtime.GOARCH {
	case "amd64":
		for _, x := range []struct {
			name string
			ok   bool
		}{
			{"sse4.1", cpu.X86.HasSSE41},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"avx512f", cpu.X86.HasAVX512F},
		} {
			if x.ok {
				f = append(f, x.name)
			}
		}
	case "arm64":
		for _, x := range []struct {
			name string
			ok   bool
		}{
			{"asimd", cpu.ARM64.HasASIMD},
			{"sve", cpu.ARM64.HasSVE},
			{"sve2", cpu.ARM64.HasSVE2},
		} {
			if x.ok {
				f = append(f, x.name)
			}
		}
	}
	if len(f) == 0 {
		return "[]"
	}
	return "[" + strings.Join(f, " ") + "]"
}
