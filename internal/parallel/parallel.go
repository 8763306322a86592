// Package parallel initializes many independent items with bounded concurrency.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Initializer is anything that needs a blocking, fallible start-up step.
type Initializer interface {
	Init(ctx context.Context) error
}

// Func adapts a function to Initializer.
type Func func(ctx context.Context) error

// Init calls f.
func (f Func) Init(ctx context.Context) error { return f(ctx) }

// Init runs every item's Init with at most concurrency in flight (0 means
// runtime.NumCPU()). A failure does not cancel siblings; all failures are
// combined with multierr in item order.
func Init(ctx context.Context, items []Initializer, concurrency int) error {
	if len(items) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			errs[i] = item.Init(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

// InitAsync runs Init on a new goroutine and calls done exactly once with the
// result. It returns a function that blocks until done has returned.
func InitAsync(ctx context.Context, items []Initializer, concurrency int, done func(error)) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := Init(ctx, items, concurrency)
		if done != nil {
			done(err)
		}
	}()
	return wg.Wait
}
