package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves an n_jobs style setting into a worker count.
// nJobs <= 0 means "use every CPU"; the result never exceeds items.
func Workers(nJobs, items int) int {
	workers := nJobs
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// ParallelizeN splits [0, items) into one contiguous range per worker and
// runs fn on each range concurrently. nJobs follows Workers.
func ParallelizeN(items, nJobs int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := Workers(nJobs, items)
	if numWorkers == 1 {
		fn(0, items)
		return
	}

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}

		// Skip if there's no range to handle
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

// ForEach runs fn(i) for every i in [0, items) on at most nJobs workers.
// Unlike ParallelizeN, work is handed out one item at a time, which keeps
// workers busy when items have very different costs (e.g. trees of
// different depth or grid candidates of different size).
func ForEach(items, nJobs int, fn func(i int)) {
	if items == 0 {
		return
	}

	numWorkers := Workers(nJobs, items)
	if numWorkers == 1 {
		for i := 0; i < items; i++ {
			fn(i)
		}
		return
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}

	for i := 0; i < items; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}
