package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestInit_Empty(t *testing.T) {
	if err := Init(context.Background(), nil, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInit_AllSucceed(t *testing.T) {
	var calls atomic.Int32
	items := make([]Initializer, 10)
	for i := range items {
		items[i] = Func(func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}
	if err := Init(context.Background(), items, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 10 {
		t.Errorf("calls = %d, want 10", calls.Load())
	}
}

func TestInit_AggregatesAllFailures(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	var ran atomic.Int32
	items := []Initializer{
		Func(func(context.Context) error { ran.Add(1); return errA }),
		Func(func(context.Context) error { ran.Add(1); return nil }),
		Func(func(context.Context) error { ran.Add(1); return errC }),
	}
	err := Init(context.Background(), items, 1)
	if ran.Load() != 3 {
		t.Errorf("a failure must not stop siblings: ran %d", ran.Load())
	}
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if !errors.Is(errs[0], errA) || !errors.Is(errs[1], errC) {
		t.Errorf("errors out of order: %v", errs)
	}
}

func TestInit_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]Initializer, 12)
	for i := range items {
		items[i] = Func(func(context.Context) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
	}
	if err := Init(context.Background(), items, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestInitAsync_CallsDoneOnce(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	var got error
	wait := InitAsync(context.Background(),
		[]Initializer{Func(func(context.Context) error { return boom })}, 2,
		func(err error) {
			calls.Add(1)
			got = err
		})
	wait()
	if calls.Load() != 1 {
		t.Errorf("done called %d times", calls.Load())
	}
	if !errors.Is(got, boom) {
		t.Errorf("done got %v", got)
	}
}

func TestInitAsync_EmptyList(t *testing.T) {
	done := make(chan error, 1)
	wait := InitAsync(context.Background(), nil, 0, func(err error) { done <- err })
	wait()
	if err := <-done; err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
