// Package parallel partitions an index range across a fixed set of worker
// goroutines. Each worker owns the index ranges it is handed, so callers can
// write results into disjoint slots of a shared slice without locking.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Threshold is the minimum number of indices to use the worker pool.
// Below this, single-threaded is faster due to goroutine overhead.
const Threshold = 64

// DefaultBatchSize is the number of indices handed to a worker at a time
// when Options.BatchSize is zero.
const DefaultBatchSize = 256

// Options controls how a range is split.
type Options struct {
	// Workers is the number of goroutines (0 = GOMAXPROCS).
	Workers int
	// BatchSize is the number of consecutive indices per work item
	// (0 = DefaultBatchSize). The context is checked between batches.
	BatchSize int
}

// WorkerCount returns the effective number of workers.
func (o Options) WorkerCount() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

// workChunk represents a range of indices for a worker to process.
type workChunk struct {
	start, end int
}

// Body processes indices [start, end). worker is in [0, WorkerCount()) and is
// stable for the lifetime of one goroutine, so it can index per-worker scratch.
type Body func(start, end, worker int)

// ForChunks calls body over [0, n) in batches. It returns ctx.Err() if the
// context is cancelled before every batch has run; batches already started
// always finish.
func ForChunks(ctx context.Context, n int, opts Options, body Body) error {
	if n <= 0 {
		return ctx.Err()
	}
	batch := opts.batchSize()
	numWorkers := opts.WorkerCount()

	// Single-threaded for small ranges
	if n < Threshold || numWorkers == 1 {
		for start := 0; start < n; start += batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			body(start, min(start+batch, n), 0)
		}
		return nil
	}

	numChunks := (n + batch - 1) / batch
	if numWorkers > numChunks {
		numWorkers = numChunks
	}

	workChan := make(chan workChunk, numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for chunk := range workChan {
				body(chunk.start, chunk.end, workerID)
			}
		}(w)
	}

	// Dispatch chunks to workers, stopping early on cancellation
	var err error
	for start := 0; start < n; start += batch {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case workChan <- workChunk{start: start, end: min(start+batch, n)}:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}
	close(workChan)
	wg.Wait()

	return err
}

// Scratch holds one reusable value per worker.
type Scratch[T any] struct {
	items []T
}

// NewScratch allocates one item per worker using alloc.
func NewScratch[T any](opts Options, alloc func() T) *Scratch[T] {
	items := make([]T, opts.WorkerCount())
	for i := range items {
		items[i] = alloc()
	}
	return &Scratch[T]{items: items}
}

// Get returns the item owned by worker.
func (s *Scratch[T]) Get(worker int) T {
	return s.items[worker]
}
