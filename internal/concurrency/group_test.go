package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGroupJoinsAllWorkers(t *testing.T) {
	g := New("test", 2)
	var n int32
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		g.StartNewThread("w", true, func(ctx context.Context) error {
			n++
			done <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(done) != 3 {
		t.Fatalf("expected 3 workers to run, got %d", len(done))
	}
}

func TestGroupAggregatesWorkerErrors(t *testing.T) {
	g := New("test", 2)
	g.StartNewThread("a", true, func(ctx context.Context) error { return errors.New("boom-a") })
	g.StartNewThread("b", true, func(ctx context.Context) error { return errors.New("boom-b") })
	err := g.Wait()
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	var eg *ExceptionGroup
	if !errors.As(err, &eg) {
		t.Fatalf("expected *ExceptionGroup, got %T", err)
	}
	if len(eg.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(eg.Errors))
	}
}

func TestGroupUncheckedWorkerErrorDoesNotFail(t *testing.T) {
	g := New("test", 2)
	g.StartNewThread("best-effort", false, func(ctx context.Context) error { return errors.New("ignored") })
	if err := g.Wait(); err != nil {
		t.Fatalf("expected unchecked worker error to be swallowed, got %v", err)
	}
}

func TestGroupSilenceException(t *testing.T) {
	sentinel := errors.New("expected-cancellation")
	g := New("test", 2)
	g.SilenceException(func(err error) bool { return errors.Is(err, sentinel) })
	g.StartNewThread("w", true, func(ctx context.Context) error { return sentinel })
	if err := g.Wait(); err != nil {
		t.Fatalf("expected silenced error to be dropped, got %v", err)
	}
}

func TestGroupCancelPropagatesToChild(t *testing.T) {
	g := New("parent", 2)
	child := g.Child("child", 2)
	g.Cancel()
	select {
	case <-child.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("expected child context to be cancelled when parent is cancelled")
	}
}

func TestGroupPanicInWorkerBecomesError(t *testing.T) {
	g := New("test", 2)
	g.StartNewThread("panics", true, func(ctx context.Context) error {
		panic("kaboom")
	})
	if err := g.Wait(); err == nil {
		t.Fatal("expected panic to surface as an error")
	}
}

func TestRunAggregatesBodyAndWorkerErrors(t *testing.T) {
	bodyErr := errors.New("body failed")
	err := Run("cmd", 2, func(g *Group) error {
		g.StartNewThread("w", true, func(ctx context.Context) error { return errors.New("worker failed") })
		return bodyErr
	})
	var eg *ExceptionGroup
	if !errors.As(err, &eg) {
		t.Fatalf("expected *ExceptionGroup, got %T (%v)", err, err)
	}
	if len(eg.Errors) != 2 {
		t.Fatalf("expected body error + worker error, got %d: %v", len(eg.Errors), eg.Errors)
	}
}

func TestRunReturnsNilWhenClean(t *testing.T) {
	err := Run("cmd", 2, func(g *Group) error {
		g.StartNewThread("w", true, func(ctx context.Context) error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
