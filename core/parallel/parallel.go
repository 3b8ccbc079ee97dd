// Package parallel provides the shared work-distribution helpers used by
// the inference and training engines. Parallelize splits an index range
// across CPU workers; Launch runs a fixed grid of "blocks", the shape the
// trainer's per-node work assignment is expressed in.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides items across CPU workers and calls fn with the
// half-open range [start, end) each worker owns.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division so the last worker gets the remainder
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items is at or below
// threshold, avoiding goroutine overhead on small inputs.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// Launch runs numBlocks instances of fn, each identified by its block
// index. Blocks execute independently; at most NumCPU run at a time. Any
// coordination between blocks (atomic counters, per-node locks) is the
// caller's responsibility, exactly as with the range form above.
func Launch(numBlocks int, fn func(block int)) {
	if numBlocks <= 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > numBlocks {
		numWorkers = numBlocks
	}

	var wg sync.WaitGroup
	next := make(chan int, numBlocks)
	for b := 0; b < numBlocks; b++ {
		next <- b
	}
	close(next)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range next {
				fn(b)
			}
		}()
	}

	wg.Wait()
}
