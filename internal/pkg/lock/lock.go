// Package lock provides per-user locking for read-modify-write updates of
// a player's lives.
package lock

import (
	"context"
	"sync"
	"time"
)

// userMutex wraps a mutex with a reference count so idle entries can be
// dropped from the map.
type userMutex struct {
	mu       sync.Mutex
	refCount int32
}

// UserLock serializes operations on the same user id. Operations on
// different users never contend.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*userMutex)}
}

// acquire returns the mutex for userID with its reference taken.
func (ul *UserLock) acquire(userID string) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{}
		ul.locks[userID] = m
	}
	m.refCount++
	return m
}

// release drops a reference and forgets the mutex when nobody holds or waits on it.
func (ul *UserLock) release(userID string, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m.refCount--
	if m.refCount == 0 {
		delete(ul.locks, userID)
	}
}

// Unlock releases a lock taken with LockContext.
func (ul *UserLock) Unlock(userID string) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	m.mu.Unlock()
	ul.release(userID, m)
}

// LockContext acquires the lock, giving up when ctx is done or timeout elapses.
func (ul *UserLock) LockContext(ctx context.Context, userID string, timeout time.Duration) error {
	m := ul.acquire(userID)

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		ul.abandon(userID, m, done)
		return ctx.Err()
	case <-timer.C:
		ul.abandon(userID, m, done)
		return ErrLockTimeout
	}
}

// abandon hands the eventual acquisition straight back.
func (ul *UserLock) abandon(userID string, m *userMutex, done <-chan struct{}) {
	go func() {
		<-done
		m.mu.Unlock()
		ul.release(userID, m)
	}()
}

// WithLockContext executes fn while holding the user's lock, waiting at most
// timeout for it.
func (ul *UserLock) WithLockContext(ctx context.Context, userID string, timeout time.Duration, fn func() error) error {
	if err := ul.LockContext(ctx, userID, timeout); err != nil {
		return err
	}
	defer ul.Unlock(userID)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
