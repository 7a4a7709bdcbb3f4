// Package workerpool runs a fixed number of workers over a shared cursor.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultLimit is the number of concurrent workers used when limit <= 0.
const DefaultLimit = 5

// RunAll processes items with at most limit concurrent calls to worker.
// Each worker claims the next unprocessed index until the list is exhausted,
// so a slow item never holds back a batch. Results keep the input order.
//
// On the first error no further items are claimed; in-flight items finish and
// the first error is returned together with the partial results.
func RunAll[T, R any](ctx context.Context, items []T, limit int, worker func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > len(items) {
		limit = len(items)
	}

	var (
		cursor   int64 = -1
		failed   atomic.Bool
		errOnce  sync.Once
		firstErr error
		wg       sync.WaitGroup
	)

	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if failed.Load() {
					return
				}
				if err := ctx.Err(); err != nil {
					errOnce.Do(func() { firstErr = err })
					failed.Store(true)
					return
				}
				idx := int(atomic.AddInt64(&cursor, 1))
				if idx >= len(items) {
					return
				}
				res, err := worker(ctx, items[idx])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					failed.Store(true)
					return
				}
				results[idx] = res
			}
		}()
	}
	wg.Wait()

	return results, firstErr
}
