package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
)

// ErrUnusable matches the failure returned once a rollback has failed.
var ErrUnusable = apperrors.New(apperrors.KindSystem, apperrors.CodeStoreUnusable, "store is unusable after a failed rollback")

// ErrLockTimeout matches the failure returned when the lock could not be
// acquired in time.
var ErrLockTimeout = apperrors.New(apperrors.KindSystem, apperrors.CodeLockTimeout, "lock acquisition timed out")

// InconsistencyError reports an undo action that failed during rollback. The
// in-memory state can no longer be proven equal to the durable log.
type InconsistencyError struct {
	TxID  uint64
	Key   Key
	Cause error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("rolling back transaction %d: undoing %s: %v", e.TxID, e.Key, e.Cause)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Cause
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockTimeout bounds how long Run and Hold wait for exclusive access.
// Zero waits as long as the caller's context allows.
func WithLockTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.lockTimeout = timeout
	}
}

// WithPanicOnInconsistency makes a failed rollback panic after marking the
// manager unusable.
func WithPanicOnInconsistency(enabled bool) Option {
	return func(m *Manager) {
		m.panicOnInconsistency = enabled
	}
}

// WithInconsistencyHook calls hook once when a rollback fails.
func WithInconsistencyHook(hook func(*InconsistencyError)) Option {
	return func(m *Manager) {
		m.onInconsistency = hook
	}
}

// WithLockWaitObserver reports time spent acquiring the lock.
func WithLockWaitObserver(observe func(mode string, elapsed time.Duration)) Option {
	return func(m *Manager) {
		m.observeLockWait = observe
	}
}

// Manager runs mutating transactions one at a time.
type Manager struct {
	lock                 *Lock
	lockTimeout          time.Duration
	panicOnInconsistency bool
	onInconsistency      func(*InconsistencyError)
	observeLockWait      func(string, time.Duration)

	seq    atomic.Uint64
	broken atomic.Pointer[InconsistencyError]
}

// NewManager creates a Manager guarding lock. A nil lock gets a fresh one.
func NewManager(lock *Lock, opts ...Option) *Manager {
	if lock == nil {
		lock = NewLock()
	}
	m := &Manager{lock: lock}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Lock returns the lock shared with readers.
func (m *Manager) Lock() *Lock {
	return m.lock
}

// Err returns the inconsistency that made the manager unusable, or nil.
func (m *Manager) Err() error {
	if broken := m.broken.Load(); broken != nil {
		return broken
	}
	return nil
}

// Begin returns a fresh, empty journal. The caller must hold the lock.
func (m *Manager) Begin() *Tx {
	return newTx(m.seq.Add(1))
}

// Hold acquires exclusive access to the system. The returned release
// function is idempotent.
func (m *Manager) Hold(ctx context.Context) (func(), error) {
	if err := m.acquire(ctx, "write", m.lock.Lock); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(m.lock.Unlock) }, nil
}

// HoldShared acquires shared access to the system, excluding mutations but
// not other readers.
func (m *Manager) HoldShared(ctx context.Context) (func(), error) {
	if err := m.acquire(ctx, "read", m.lock.RLock); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(m.lock.RUnlock) }, nil
}

func (m *Manager) acquire(ctx context.Context, mode string, lock func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}
	start := time.Now()
	if err := lock(ctx); err != nil {
		return apperrors.System(apperrors.CodeLockTimeout, "acquiring "+mode+" lock", err)
	}
	if m.observeLockWait != nil {
		m.observeLockWait(mode, time.Since(start))
	}
	return nil
}

// Run executes action as one transaction: it acquires exclusive access,
// begins a fresh journal, runs action and, if action fails or panics, rolls
// back every field it touched before returning the failure.
//
// A panic inside action becomes a system failure. A failed rollback returns
// an *InconsistencyError and every later Run fails with ErrUnusable.
func (m *Manager) Run(ctx context.Context, action func(*Tx) error) error {
	if action == nil {
		return errors.New("transaction action is required")
	}
	if err := m.unusable(); err != nil {
		return err
	}
	release, err := m.Hold(ctx)
	if err != nil {
		return err
	}
	defer release()
	if err := m.unusable(); err != nil {
		return err
	}

	tx := m.Begin()
	err = runAction(tx, action)
	if err == nil {
		if advanceErr := tx.Advance(StateCommitted); advanceErr != nil {
			err = apperrors.System(apperrors.CodeTransactionFault, "committing transaction", advanceErr)
		} else {
			tx.discard()
			return nil
		}
	}
	if rollbackErr := m.rollback(tx); rollbackErr != nil {
		return rollbackErr
	}
	return err
}

func (m *Manager) unusable() error {
	if broken := m.broken.Load(); broken != nil {
		return apperrors.System(apperrors.CodeStoreUnusable, "store is unusable after a failed rollback", broken)
	}
	return nil
}

func runAction(tx *Tx, action func(*Tx) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = apperrors.System(apperrors.CodeTransactionFault, "managing transaction", panicError(recovered))
		}
	}()
	return action(tx)
}

// rollback undoes every journaled field in first-touch order.
func (m *Manager) rollback(tx *Tx) error {
	tx.state = StateFailed
	_ = tx.Advance(StateRollingBack)
	for _, key := range tx.keys {
		if err := invokeUndo(tx.undo[key]); err != nil {
			inconsistency := &InconsistencyError{TxID: tx.id, Key: key, Cause: err}
			m.broken.CompareAndSwap(nil, inconsistency)
			if m.onInconsistency != nil {
				m.onInconsistency(inconsistency)
			}
			if m.panicOnInconsistency {
				panic(inconsistency)
			}
			return inconsistency
		}
	}
	_ = tx.Advance(StateRolledBack)
	tx.discard()
	return nil
}

func invokeUndo(undo Undo) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = panicError(recovered)
		}
	}()
	return undo()
}

func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", recovered)
}
