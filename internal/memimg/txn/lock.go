package txn

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds concurrent shared holders; a writer acquires all of it.
const maxReaders = 1 << 30

// Lock is a reader/writer lock whose acquisition honours context deadlines.
// Waiters are served in FIFO order, so a waiting writer is not starved by a
// stream of readers.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(maxReaders)}
}

// Lock acquires exclusive access or returns ctx's error.
func (l *Lock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, maxReaders)
}

// Unlock releases exclusive access.
func (l *Lock) Unlock() {
	l.sem.Release(maxReaders)
}

// RLock acquires shared access or returns ctx's error.
func (l *Lock) RLock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// RUnlock releases shared access.
func (l *Lock) RUnlock() {
	l.sem.Release(1)
}

// TryLock acquires exclusive access without blocking.
func (l *Lock) TryLock() bool {
	return l.sem.TryAcquire(maxReaders)
}
