// Package lock provides short-lived distributed mutexes backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/printhouse/textile-erp/internal/shared"
)

// ErrNotObtained is returned when the lock stays busy for the whole wait budget.
// It wraps shared.ErrConcurrentModification so callers can retry.
var ErrNotObtained = fmt.Errorf("lock busy: %w", shared.ErrConcurrentModification)

// Locker serialises critical sections across processes. A nil *Locker runs
// the callback without locking.
type Locker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	retries int
	logger  *slog.Logger
}

// New builds a locker. ttl bounds how long a crashed holder can block others.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		client:  redislock.New(client),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		retries: 40,
		logger:  logger,
	}
}

// WithLock runs fn while holding key, waiting up to retries*backoff for it.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	held, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("lock not obtained", slog.String("key", key))
		return ErrNotObtained
	}
	if err != nil {
		return fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}
	defer func() {
		// Use a fresh context so a cancelled request still releases the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("lock release failed", slog.String("key", key), slog.Any("error", err))
		}
	}()
	return fn(ctx)
}
