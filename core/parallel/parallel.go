// Package parallel provides a small helper for fanning document-indexed
// loops out over the available CPUs. Chunk boundaries depend only on the
// item count and GOMAXPROCS, so a caller that writes disjoint output slots
// per index gets bit-identical results on every run.
package parallel

import (
	"runtime"
	"sync"
)

// For runs fn over [0, items) split into one contiguous chunk per worker.
// fn receives half-open ranges [start, end) and must not touch indices
// outside its range.
func For(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > items {
		workers = items
	}
	if workers == 1 {
		fn(0, items)
		return
	}

	chunk := (items + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < items; start += chunk {
		end := start + chunk
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ForWithThreshold runs fn sequentially when items does not exceed the
// threshold, avoiding goroutine overhead on small inputs.
func ForWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	For(items, fn)
}
