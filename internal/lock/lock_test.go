package lock

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, VehicleKey(7))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots)
}

func TestLocalLocker_Timeout(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "vehicle:1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "vehicle:1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	// other keys stay independent
	other, err := l.Lock(context.Background(), "vehicle:2")
	require.NoError(t, err)
	other()
}

func TestLocalLocker_ReleaseTwice(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return NewRedisLocker(client, 5*time.Second, 500*time.Millisecond, &logger), mr
}

func TestRedisLocker(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	release, err := l.Lock(ctx, VehicleKey(3))
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"vehicle:3"))

	waitCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, VehicleKey(3))
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	assert.False(t, mr.Exists(keyPrefix+"vehicle:3"))

	release2, err := l.Lock(ctx, VehicleKey(3))
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t)

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// the lock expired and someone else took it
	require.NoError(t, mr.Set(keyPrefix+"k", "someone-else"))
	release()

	got, err := mr.Get(keyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_Expiry(t *testing.T) {
	l, mr := newRedisLocker(t)

	_, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	mr.FastForward(6 * time.Second)

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
}

func TestRedisLocker_ExtendsWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	l := NewRedisLocker(client, 300*time.Millisecond, 100*time.Millisecond, &logger)

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// nearly expired; the holder must push it back out
	mr.FastForward(250 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL(keyPrefix+"k") > 200*time.Millisecond
	}, time.Second, 10*time.Millisecond)

	release()
	assert.False(t, mr.Exists(keyPrefix+"k"))
}

func TestRedisLocker_UnresponsiveServerFailsOver(t *testing.T) {
	// accepts connections and never answers
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { _, _ = io.Copy(io.Discard, c) }()
		}
	}()

	client := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), ContextTimeoutEnabled: true, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	redisLocker := NewRedisLocker(client, 5*time.Second, 50*time.Millisecond, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	started := time.Now()
	_, err = redisLocker.Lock(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(started), time.Second)

	failover := NewFailoverLocker(redisLocker, NewLocalLocker(), &logger)
	release, err := failover.Lock(ctx, "k")
	require.NoError(t, err)
	release()
	assert.True(t, failover.isDown.Load())
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	l := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()
	noop := func() {}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "a").Return(noop, nil).Once()

		release, err := l.Lock(ctx, "a")
		require.NoError(t, err)
		assert.NotNil(t, release)
		primary.AssertExpectations(t)
	})

	t.Run("ContentionDoesNotFailOver", func(t *testing.T) {
		primary.On("Lock", ctx, "busy").Return(nil, ErrLockTimeout).Once()

		_, err := l.Lock(ctx, "busy")
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.False(t, l.isDown.Load())
		fallback.AssertNotCalled(t, "Lock", ctx, "busy")
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "b").Return(nil, errors.New("connection refused")).Once()
		fallback.On("Lock", ctx, "b").Return(noop, nil).Once()

		_, err := l.Lock(ctx, "b")
		require.NoError(t, err)
		assert.True(t, l.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("Lock", ctx, "c").Return(noop, nil).Once()

		_, err := l.Lock(ctx, "c")
		require.NoError(t, err)
		primary.AssertNotCalled(t, "Lock", ctx, "c")
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		l.isDown.Store(true)
		l.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("Lock", ctx, "d").Return(noop, nil).Once()

		_, err := l.Lock(ctx, "d")
		require.NoError(t, err)
		assert.False(t, l.isDown.Load())
		primary.AssertExpectations(t)
	})
}
