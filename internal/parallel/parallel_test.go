package parallel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	results := Map(context.Background(), items, func(ctx context.Context, item, index int) (int, error) {
		// Randomize completion order.
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return item * 2, nil
	}, Options{Concurrency: 8})

	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
		if r.Err != nil {
			t.Errorf("result %d error: %v", i, r.Err)
		}
		if r.Value != i*2 {
			t.Errorf("result %d = %d, want %d", i, r.Value, i*2)
		}
	}
}

func TestMapErrorIsolation(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	failIndex := 4

	var lastCompleted, lastTotal int
	var mu sync.Mutex

	results := Map(context.Background(), items, func(ctx context.Context, item, index int) (string, error) {
		if index == failIndex {
			return "", errors.New("boom")
		}
		return fmt.Sprintf("ok-%d", index), nil
	}, Options{
		Concurrency: 3,
		OnProgress: func(completed, total int) {
			mu.Lock()
			lastCompleted, lastTotal = completed, total
			mu.Unlock()
		},
	})

	for i, r := range results {
		if i == failIndex {
			if r.Err == nil {
				t.Errorf("expected error at index %d", failIndex)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("unexpected error at %d: %v", i, r.Err)
		}
		if r.Value != fmt.Sprintf("ok-%d", i) {
			t.Errorf("result %d = %q", i, r.Value)
		}
	}

	if lastCompleted != len(items) || lastTotal != len(items) {
		t.Errorf("final progress = (%d, %d), want (%d, %d)", lastCompleted, lastTotal, len(items), len(items))
	}
}

func TestMapProgressFiresOncePerItem(t *testing.T) {
	items := make([]int, 20)
	var calls atomic.Int64
	seen := make(map[int]bool)
	var mu sync.Mutex

	Map(context.Background(), items, func(ctx context.Context, item, index int) (int, error) {
		return 0, nil
	}, Options{
		Concurrency: 4,
		OnProgress: func(completed, total int) {
			calls.Add(1)
			mu.Lock()
			if seen[completed] {
				t.Errorf("completed=%d reported twice", completed)
			}
			seen[completed] = true
			mu.Unlock()
		},
	})

	if calls.Load() != int64(len(items)) {
		t.Errorf("progress fired %d times, want %d", calls.Load(), len(items))
	}
}

func TestMapConcurrencyBound(t *testing.T) {
	const bound = 3
	var inFlight, peak atomic.Int64

	items := make([]int, 30)
	Map(context.Background(), items, func(ctx context.Context, item, index int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	}, Options{Concurrency: bound})

	if peak.Load() > bound {
		t.Errorf("peak in-flight = %d, want <= %d", peak.Load(), bound)
	}
}

func TestMapStopOnError(t *testing.T) {
	items := make([]int, 100)
	var started atomic.Int64

	results := Map(context.Background(), items, func(ctx context.Context, item, index int) (int, error) {
		started.Add(1)
		if index == 0 {
			return 0, errors.New("fatal")
		}
		time.Sleep(time.Millisecond)
		return 1, nil
	}, Options{Concurrency: 2, StopOnError: true})

	if results[0].Err == nil {
		t.Error("expected error at index 0")
	}
	if int(started.Load()) == len(items) {
		t.Error("expected early cancellation to skip items")
	}
}

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	batches := Batch(items, 3)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 3 || len(batches[1]) != 3 || len(batches[2]) != 1 {
		t.Errorf("batch sizes = %d,%d,%d", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	if got := Batch([]int{}, 3); len(got) != 0 {
		t.Errorf("empty input produced %d batches", len(got))
	}
}

func TestMapEmptyInput(t *testing.T) {
	results := Map(context.Background(), []int{}, func(ctx context.Context, item, index int) (int, error) {
		t.Fatal("fn called for empty input")
		return 0, nil
	}, Options{})
	if len(results) != 0 {
		t.Errorf("got %d results for empty input", len(results))
	}
}
