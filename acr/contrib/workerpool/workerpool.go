// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool provides the persistent code generation workers of a
// kernel instance. A Pool is created once at runtime initialization and
// reused for every regeneration, so no goroutine is spawned per sample.
//
// Each parallel call hands every chunk a distinct worker slot in
// [0, NumWorkers()). Callers index per-worker state (geometry contexts,
// output buffers) by slot; two chunks of the same call never share a slot.
//
// Usage:
//
//	pool := workerpool.New(cfg.GenThreads)
//	defer pool.Close()
//
//	pool.ParallelForWorker(numTiles, func(worker, start, end int) {
//	    for tile := start; tile < end; tile++ {
//	        emit(ctxs[worker], tile)
//	    }
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool. Workers are spawned once at creation.
type Pool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// New creates a pool with numWorkers workers. If numWorkers <= 0, uses
// GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan workItem, numWorkers),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for item := range p.workC {
		item.fn()
		item.barrier.Done()
	}
}

// NumWorkers returns the number of worker slots.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close shuts down the pool. Pending work completes. Calling Close more than
// once is safe.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// ParallelForWorker splits [0, n) into at most NumWorkers contiguous chunks
// and calls fn(worker, start, end) for each, where worker is the chunk's
// slot. Chunks are ordered: the chunk of slot w precedes the chunk of slot
// w+1. Blocks until every chunk is done.
//
// Concurrent calls on the same pool must not share per-slot state.
func (p *Pool) ParallelForWorker(n int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}

	workers := min(p.numWorkers, n)
	if workers == 1 || p.closed.Load() {
		fn(0, 0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := range workers {
		start := w * chunkSize
		if start >= n {
			break
		}
		end := min(start+chunkSize, n)
		wg.Add(1)
		p.workC <- workItem{
			fn: func() {
				fn(w, start, end)
			},
			barrier: &wg,
		}
	}
	wg.Wait()
}

// Chunks returns the number of chunks ParallelForWorker would use for n
// items.
func (p *Pool) Chunks(n int) int {
	if n <= 0 {
		return 0
	}
	workers := min(p.numWorkers, n)
	if workers == 1 || p.closed.Load() {
		return 1
	}
	chunkSize := (n + workers - 1) / workers
	return (n + chunkSize - 1) / chunkSize
}
