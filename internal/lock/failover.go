package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rentacar/internal/metrics"
)

const recoveryInterval = time.Minute

// FailoverLocker prefers the primary (Redis) locker and falls back to the
// in-process one while the primary is unreachable. After recoveryInterval
// the primary is tried again.
type FailoverLocker struct {
	primary  Locker
	fallback Locker
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLocker(primary, fallback Locker, logger *zerolog.Logger) *FailoverLocker {
	l := logger.With().Str("component", "lock_failover").Logger()
	return &FailoverLocker{primary: primary, fallback: fallback, logger: &l}
}

func (f *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if f.usePrimary() {
		release, err := f.primary.Lock(ctx, key)
		if err == nil {
			if f.isDown.CompareAndSwap(true, false) {
				f.logger.Info().Msg("Primary locker recovered")
			}
			return release, nil
		}
		// contention is not an outage
		if errors.Is(err, ErrLockTimeout) {
			return nil, err
		}
		f.markDown(err)
	}
	return f.fallback.Lock(ctx, key)
}

func (f *FailoverLocker) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= recoveryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverLocker) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		metrics.IncLockFailover()
		f.logger.Error().Err(err).Msg("Primary locker failed, switching to local locks")
	}
}
