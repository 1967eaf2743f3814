// Package lock serializes writes per vehicle. Conflict detection and the
// follow-up write must run under the same lock so two overlapping requests
// for one vehicle cannot both observe a free calendar.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rentacar/internal/metrics"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker acquires a named exclusive lock. The returned release func is safe
// to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// VehicleKey is the lock key guarding one vehicle's calendar.
func VehicleKey(vehicleID int64) string {
	return fmt.Sprintf("vehicle:%d", vehicleID)
}

// LocalLocker keeps one channel semaphore per key in process memory.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	started := time.Now()

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, fmt.Errorf("%w %s: %w", ErrLockTimeout, key, ctx.Err())
	}
	metrics.ObserveLockWait("local", time.Since(started))

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
