// Package lock provides per-user locking so that the fetch, validate and
// apply steps of one user's events never interleave.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when a user's lock is not acquired before the
// context deadline.
var ErrLockTimeout = errors.New("user lock wait timed out")

// userMutex is a one-slot semaphore with a reference count. The channel form
// lets a waiter give up when its context ends.
type userMutex struct {
	sem  chan struct{}
	refs int
}

// UserLock hands out one lock per user id. Entries are created on demand and
// dropped once nobody holds or waits for them, so the map stays as large as
// the set of users with in-flight work.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*userMutex)}
}

// acquire returns the user's mutex and registers the caller as a user of it.
func (ul *UserLock) acquire(userID string) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{sem: make(chan struct{}, 1)}
		ul.locks[userID] = m
	}
	m.refs++
	return m
}

// release drops the caller's reference and forgets the entry when unused.
func (ul *UserLock) release(userID string, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(ul.locks, userID)
	}
}

// Lock blocks until the user's lock is held.
func (ul *UserLock) Lock(userID string) {
	m := ul.acquire(userID)
	m.sem <- struct{}{}
}

// Unlock releases the user's lock. Unlocking a lock that is not held is a
// no-op.
func (ul *UserLock) Unlock(userID string) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.sem:
		ul.release(userID, m)
	default:
	}
}

// LockContext waits for the user's lock until ctx is done.
// Returns ErrLockTimeout when the context deadline passes first and
// ctx.Err() on cancellation.
func (ul *UserLock) LockContext(ctx context.Context, userID string) error {
	m := ul.acquire(userID)
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.release(userID, m)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}
