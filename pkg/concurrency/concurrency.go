// Package concurrency provides a simple utility for running tasks on a slice in parallel.
package concurrency

import (
	"errors"
	"sync"
)

// minItemsForParallel is the threshold needed to be eligible for running in parallel.
// Decoding a single frame is expensive, so even small batches are worth fanning out.
const minItemsForParallel = 2

// ErrNoItems is returned by Map for an empty input.
var ErrNoItems = errors.New("no items to map")

// ForEach executes a worker function for each item in a slice, distributing the work across `cores` goroutines.
func ForEach[T any](cores int, items []T, workerFunc func(index int, item T) error) error {
	numItems := len(items)
	if numItems == 0 {
		return nil
	}

	// If parallelism is not configured or the slice is too small, run a simple for loop.
	if cores <= 1 || numItems < minItemsForParallel {
		for i, item := range items {
			if err := workerFunc(i, item); err != nil {
				return err // Fail fast on the first error in sequential mode.
			}
		}
		return nil
	}

	// --- Parallel Execution Path ---
	jobs := make(chan int, numItems)
	errs := make(chan error, numItems)
	var wg sync.WaitGroup

	for w := 0; w < min(cores, numItems); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := workerFunc(i, items[i]); err != nil {
					errs <- err
				}
			}
		}()
	}

	for i := 0; i < numItems; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(errs)

	if len(errs) > 0 {
		return <-errs // Return the first error found.
	}
	return nil
}

// Map executes a worker function for each item in a slice and returns a new slice
// containing the transformed results in input order. Unlike ForEach, a failing
// item does not stop the others: every index gets a result or an error.
func Map[T any, U any](cores int, items []T, workerFunc func(item T) (U, error)) ([]U, []error, error) {
	numItems := len(items)
	if numItems == 0 {
		return nil, nil, ErrNoItems
	}

	results := make([]U, numItems)
	errs := make([]error, numItems)

	_ = ForEach(cores, items, func(i int, item T) error {
		results[i], errs[i] = workerFunc(item)
		return nil
	})
	return results, errs, nil
}
