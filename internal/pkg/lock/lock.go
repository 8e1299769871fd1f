// Package lock provides per-user mutual exclusion for wallet mutations.
//
// Locks are keyed by internal user id and created on demand. An entry is
// removed as soon as nobody holds or waits for it, so the table only grows
// with the number of users that are being mutated concurrently.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// entry is a one-slot semaphore with a count of holders and waiters.
type entry struct {
	sem  chan struct{}
	refs int
}

// UserLock serializes operations per user while letting different users
// proceed in parallel.
type UserLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{entries: make(map[int64]*entry)}
}

// acquire registers interest in a user's entry, creating it if needed.
func (ul *UserLock) acquire(userID int64) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e, ok := ul.entries[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		ul.entries[userID] = e
	}
	e.refs++
	return e
}

// release drops interest in an entry and removes it once unused.
func (ul *UserLock) release(userID int64, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(ul.entries, userID)
	}
}

// Lock blocks until the user's lock is held.
func (ul *UserLock) Lock(userID int64) {
	e := ul.acquire(userID)
	e.sem <- struct{}{}
}

// Unlock releases the user's lock. Unlocking a user that is not locked is a no-op.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-e.sem:
		ul.release(userID, e)
	default:
	}
}

// TryLock acquires the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (ul *UserLock) TryLock(userID int64) bool {
	e := ul.acquire(userID)
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		ul.release(userID, e)
		return false
	}
}

// LockContext blocks until the lock is held or ctx is done.
// A waiter that gives up leaves no trace behind.
func (ul *UserLock) LockContext(ctx context.Context, userID int64) error {
	e := ul.acquire(userID)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.release(userID, e)
		return ctx.Err()
	}
}

// WithLock executes fn while holding the user's lock.
func (ul *UserLock) WithLock(userID int64, fn func() error) error {
	ul.Lock(userID)
	defer ul.Unlock(userID)
	return fn()
}

// WithLockContext executes fn while holding the user's lock.
// If timeout is positive and the lock is not acquired in time, ErrLockTimeout is returned.
func (ul *UserLock) WithLockContext(ctx context.Context, userID int64, timeout time.Duration, fn func() error) error {
	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := ul.LockContext(lockCtx, userID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrLockTimeout
		}
		return err
	}
	defer ul.Unlock(userID)

	return fn()
}

// IsLocked reports whether the user's lock is currently held.
// The answer may be stale as soon as it is returned.
func (ul *UserLock) IsLocked(userID int64) bool {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	return ok && len(e.sem) == 1
}

// Len returns the number of users with a held or awaited lock.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.entries)
}
