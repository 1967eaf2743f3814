package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rentacar/internal/metrics"
)

const (
	keyPrefix    = "rentacar:lock:"
	retryBackoff = 25 * time.Millisecond

	defaultAttemptTimeout = 500 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// extendScript pushes the expiry forward only while the key holds our token.
var extendScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisLocker is a single-instance Redis lock (SET NX PX plus token check).
// A held lock is extended every ttl/3 until it is released.
//
// Every round trip is bounded by attemptTimeout. A Redis that stops answering
// therefore surfaces as a plain error, which FailoverLocker treats as an
// outage, instead of eating the whole lock wait and looking like contention.
// The client needs ContextTimeoutEnabled for the bound to reach the socket.
type RedisLocker struct {
	client         *redis.Client
	ttl            time.Duration
	attemptTimeout time.Duration
	logger         *zerolog.Logger
}

func NewRedisLocker(client *redis.Client, ttl, attemptTimeout time.Duration, logger *zerolog.Logger) *RedisLocker {
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	l := logger.With().Str("component", "redis_lock").Logger()
	return &RedisLocker{client: client, ttl: ttl, attemptTimeout: attemptTimeout, logger: &l}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	started := time.Now()
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.trySet(ctx, redisKey, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w %s: %w", ErrLockTimeout, key, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %s: %w", ErrLockTimeout, key, ctx.Err())
		case <-time.After(retryBackoff):
		}
	}
	metrics.ObserveLockWait("redis", time.Since(started))

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// release must not depend on the caller's possibly cancelled context
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
			}
		})
	}, nil
}

func (l *RedisLocker) trySet(ctx context.Context, redisKey, token string) (bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, l.attemptTimeout)
	defer cancel()
	return l.client.SetNX(attemptCtx, redisKey, token, l.ttl).Result()
}

func (l *RedisLocker) keepAlive(key, redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.attemptTimeout)
		n, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.logger.Warn().Err(err).Str("key", key).Msg("Failed to extend lock")
		case n == 0:
			l.logger.Error().Str("key", key).Msg("Lock lost before release")
			return
		}
	}
}
