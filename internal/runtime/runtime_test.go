package runtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForSucceedsImmediately(t *testing.T) {
	err := WaitFor(context.Background(), "immediate", time.Second, 10*time.Millisecond, func() (bool, error) {
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForTimesOut(t *testing.T) {
	err := WaitFor(context.Background(), "never", 30*time.Millisecond, 5*time.Millisecond, func() (bool, error) {
		return false, nil
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %T (%v)", err, err)
	}
}

func TestWaitForPropagatesConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := WaitFor(context.Background(), "errors", time.Second, 5*time.Millisecond, func() (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestContainsAny(t *testing.T) {
	if !containsAny("hello world", []string{"nope", "world"}) {
		t.Fatal("expected match")
	}
	if containsAny("hello world", []string{"nope", "zzz"}) {
		t.Fatal("expected no match")
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("a\nb\nc\n"); got != "c" {
		t.Fatalf("expected c, got %q", got)
	}
}
