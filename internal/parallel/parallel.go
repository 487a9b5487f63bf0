// Package parallel provides a bounded-concurrency mapper with per-item
// error isolation and progress callbacks. It is the only place the
// pipelines fan out many LLM calls at once.
package parallel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result holds the outcome for one input item. Exactly one of Value and
// Err is meaningful; Index always matches the input position.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Options configures a Map call.
type Options struct {
	// Concurrency bounds in-flight calls. Defaults to 5.
	Concurrency int

	// OnProgress fires after each item finishes, exactly once per item,
	// in completion order.
	OnProgress func(completed, total int)

	// StopOnError cancels remaining work after the first error.
	// In-flight items may finish but no new items are started.
	// The default records errors per item and continues.
	StopOnError bool
}

// Map applies fn to every item with at most opts.Concurrency invocations
// in flight. Workers pull from a shared cursor; result slot i always
// corresponds to items[i] regardless of completion order. A panic in fn
// is captured as that item's error.
func Map[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T, index int) (R, error), opts Options) []Result[R] {
	total := len(items)
	results := make([]Result[R], total)
	if total == 0 {
		return results
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	if concurrency > total {
		concurrency = total
	}

	var cursor atomic.Int64
	var completed atomic.Int64
	var progressMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= total {
					return nil
				}
				if opts.StopOnError && ctx.Err() != nil {
					results[i] = Result[R]{Index: i, Err: ctx.Err()}
					continue
				}

				value, err := safeCall(ctx, items[i], i, fn)
				results[i] = Result[R]{Index: i, Value: value, Err: err}

				done := completed.Add(1)
				if opts.OnProgress != nil {
					progressMu.Lock()
					opts.OnProgress(int(done), total)
					progressMu.Unlock()
				}

				if err != nil && opts.StopOnError {
					// Cancels the group context; other workers stop
					// pulling new items.
					return err
				}
			}
		})
	}
	_ = g.Wait()

	return results
}

// safeCall invokes fn, converting a panic into an error so one bad item
// cannot take down the stage.
func safeCall[T, R any](ctx context.Context, item T, index int, fn func(context.Context, T, int) (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in item %d: %v", index, r)
		}
	}()
	return fn(ctx, item, index)
}

// Batch splits items into consecutive groups of at most size.
func Batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// MapBatch chunks items into batches of batchSize and maps fn over the
// batches with Map's semantics.
func MapBatch[T, R any](ctx context.Context, items []T, batchSize int, fn func(ctx context.Context, batch []T, index int) (R, error), opts Options) []Result[R] {
	return Map(ctx, Batch(items, batchSize), fn, opts)
}

// Errors returns the errors recorded in results, in index order.
func Errors[R any](results []Result[R]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
