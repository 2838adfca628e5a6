package goreflcore

import (
	"context"
	"runtime"
	"sync"
)

// runTrials calls fn for every trial index on a bounded set of workers.
// Each fn writes only to its own slot of the caller's result slices, so the
// outcome does not depend on scheduling. The first error stops the remaining
// trials.
func runTrials(ctx context.Context, trials, workers int, fn func(trial int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > trials {
		workers = trials
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, trials)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(i); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

	for i := 0; i < trials; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
