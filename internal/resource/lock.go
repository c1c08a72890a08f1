package resource

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the caller's context ends while waiting
// for the index lock.
var ErrLockTimeout = errors.New("lock timeout")

const lockWeight = 1 << 30

// RWLock is a reader/writer lock whose acquisition honours a context.
// Readers take one unit of a weighted semaphore, writers take all units. The
// semaphore serves waiters in FIFO order, so a waiting writer is not starved
// by a stream of readers.
type RWLock struct {
	sem *semaphore.Weighted
}

// NewRWLock creates an unlocked RWLock.
func NewRWLock() *RWLock {
	return &RWLock{sem: semaphore.NewWeighted(lockWeight)}
}

// RLock acquires a shared lock.
func (l *RWLock) RLock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return nil
}

// RUnlock releases a shared lock.
func (l *RWLock) RUnlock() {
	l.sem.Release(1)
}

// Lock acquires the exclusive lock.
func (l *RWLock) Lock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, lockWeight); err != nil {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return nil
}

// TryLock acquires the exclusive lock without waiting.
func (l *RWLock) TryLock() bool {
	return l.sem.TryAcquire(lockWeight)
}

// Unlock releases the exclusive lock.
func (l *RWLock) Unlock() {
	l.sem.Release(lockWeight)
}
