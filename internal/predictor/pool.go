package predictor

import (
	"context"
	"sync"
)

// forEach calls fn for every index in [0, n) on at most workers goroutines.
// No new index is handed out once ctx is done; fn must still check ctx
// because an index may be dispatched concurrently with cancellation.
func forEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int)) {
	if workers > n {
		workers = n
	}

	if workers <= 1 {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, i)
		}
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(ctx, i)
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}

	close(jobs)
	wg.Wait()
}
