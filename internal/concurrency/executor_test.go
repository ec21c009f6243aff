package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBoundedExecutorLimitsConcurrency(t *testing.T) {
	e := NewBoundedExecutor(2)
	var current, max int32

	work := make([]int, 10)
	for i := range work {
		work[i] = i
	}

	results := SubmitAll(context.Background(), e, work, func(i int) (int, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return i * 2, nil
	})

	if atomic.LoadInt32(&max) > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", max)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error at %d: %v", i, r.Err)
		}
		if r.Value != i*2 {
			t.Fatalf("expected %d, got %d", i*2, r.Value)
		}
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	e := NewBoundedExecutor(1)
	fut := Submit(context.Background(), e, func() (string, error) {
		return "", errBoom
	})
	_, err := fut.Get(context.Background())
	if err != errBoom {
		t.Fatalf("expected errBoom, got %v", err)
	}
}

var errBoom = errors.New("boom")
