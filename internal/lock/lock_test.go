package lock

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithLockSerializesAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	var current, max int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = WithLock(context.Background(), path, func() error {
				n := atomic.AddInt32(&current, 1)
				for {
					m := atomic.LoadInt32(&max)
					if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if max > 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", max)
	}
}

func TestTryLockFailsWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	l1 := New(path)
	unlock1, ok, err := l1.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected first TryLock to succeed, got ok=%v err=%v", ok, err)
	}
	defer unlock1()

	l2 := New(path)
	_, ok2, err := l2.TryLock()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok2 {
		t.Fatal("expected second TryLock to fail while first holds the lock")
	}
}

func TestRLockAllowsMultipleReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	l1 := New(path)
	unlock1, err := l1.RLock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unlock1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l2 := New(path)
	unlock2, err := l2.RLock(ctx)
	if err != nil {
		t.Fatalf("expected concurrent readers to both acquire, got %v", err)
	}
	unlock2()
}
