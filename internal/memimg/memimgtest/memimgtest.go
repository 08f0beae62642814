// Package memimgtest provides helpers for testing images and the domains
// that plug into them.
package memimgtest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/louisbranch/memimg/internal/memimg"
	"github.com/louisbranch/memimg/internal/memimg/event"
)

// ErrInjected is the default fault returned by FaultyStorage.
var ErrInjected = errors.New("injected storage fault")

// FaultyStorage wraps an EventStorage and fails operations on demand.
type FaultyStorage struct {
	inner memimg.EventStorage

	mu          sync.Mutex
	failAppends int
	appendErr   error
	replayErr   error
	appends     int
}

// NewFaultyStorage wraps inner.
func NewFaultyStorage(inner memimg.EventStorage) *FaultyStorage {
	return &FaultyStorage{inner: inner}
}

// FailNextAppends makes the next n appends return err (ErrInjected when
// err is nil) without reaching the wrapped storage.
func (f *FaultyStorage) FailNextAppends(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.failAppends = n
	f.appendErr = err
}

// FailReplay makes Replay return err before reading any event.
func (f *FaultyStorage) FailReplay(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replayErr = err
}

// Appends returns the number of appends that reached the wrapped storage.
func (f *FaultyStorage) Appends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appends
}

// Replay implements memimg.EventStorage.
func (f *FaultyStorage) Replay(ctx context.Context, apply func(event.Event) error) error {
	f.mu.Lock()
	err := f.replayErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.inner.Replay(ctx, apply)
}

// Append implements memimg.EventStorage.
func (f *FaultyStorage) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	f.mu.Lock()
	if f.failAppends > 0 {
		f.failAppends--
		err := f.appendErr
		f.mu.Unlock()
		return event.Event{}, err
	}
	f.appends++
	f.mu.Unlock()
	return f.inner.Append(ctx, evt)
}

// Tester executes mutations against an image and fails the test when they
// fail or their checks do not hold.
type Tester[S any] struct {
	t     testing.TB
	image *memimg.Image[S]
}

// NewTester returns a Tester bound to t.
func NewTester[S any](t testing.TB, image *memimg.Image[S]) *Tester[S] {
	return &Tester[S]{t: t, image: image}
}

// VerifyAfter executes m and fails the test unless check reports true for
// its result.
func (tt *Tester[S]) VerifyAfter(m memimg.Mutation[S], check func(result any) bool) {
	tt.t.Helper()
	result := tt.execute(m)
	if !check(result) {
		tt.t.Fatalf("verification failed after %s: %+v", m.MutationType(), m)
	}
}

// AssertAfter executes m and hands its result to assert.
func (tt *Tester[S]) AssertAfter(m memimg.Mutation[S], assert func(t testing.TB, result any)) {
	tt.t.Helper()
	assert(tt.t, tt.execute(m))
}

func (tt *Tester[S]) execute(m memimg.Mutation[S]) any {
	tt.t.Helper()
	result, err := tt.image.ExecuteMutation(context.Background(), m)
	if err != nil {
		tt.t.Fatalf("execute %s: %v", m.MutationType(), err)
	}
	return result
}
