// Package lock provides the cross-process cooperative locking primitive
// used by the host store and by individual hosts to serialize
// read-modify-write operations across separate mng invocations. It
// generalizes the per-file gofrs/flock usage already used to guard the
// feed file in this codebase into a reusable, context-aware primitive.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// FileLock wraps a single lock file path. Every method is safe to call from
// multiple goroutines in this process, but it is not itself a reentrant
// lock: a goroutine that already holds the lock must not try to acquire it
// again.
type FileLock struct {
	path string
	fl   *flock.Flock
}

// New returns a FileLock bound to path. The file is created on first
// acquire if it does not already exist.
func New(path string) *FileLock {
	return &FileLock{path: path, fl: flock.New(path)}
}

// Path returns the underlying lock file path.
func (l *FileLock) Path() string { return l.path }

// Lock blocks until the exclusive lock is acquired or ctx is done.
func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	ok, err := l.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring exclusive lock on %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquiring exclusive lock on %s: %w", l.path, ctx.Err())
	}
	return l.unlockFunc(), nil
}

// RLock blocks until a shared (read) lock is acquired or ctx is done.
// Multiple readers may hold the lock concurrently; a writer waits for all
// of them to release.
func (l *FileLock) RLock(ctx context.Context) (func(), error) {
	ok, err := l.fl.TryRLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring shared lock on %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquiring shared lock on %s: %w", l.path, ctx.Err())
	}
	return l.unlockFunc(), nil
}

// TryLock attempts to acquire the exclusive lock without blocking. The
// second return value is false if the lock is currently held elsewhere.
func (l *FileLock) TryLock() (func(), bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("try-locking %s: %w", l.path, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.unlockFunc(), true, nil
}

func (l *FileLock) unlockFunc() func() {
	return func() {
		_ = l.fl.Unlock()
	}
}

// WithLock acquires the exclusive lock, runs fn, and releases the lock
// regardless of whether fn returns an error. This is the shape every
// read-modify-write call site in hoststore uses.
func WithLock(ctx context.Context, path string, fn func() error) error {
	l := New(path)
	unlock, err := l.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// WithRLock is the read-only counterpart of WithLock.
func WithRLock(ctx context.Context, path string, fn func() error) error {
	l := New(path)
	unlock, err := l.RLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
