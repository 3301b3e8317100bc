package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("platform/cache: lock held by another process")

// Guard serialises batch runs across processes with a Redis lock.
type Guard struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewGuard constructs a Guard whose locks expire after ttl.
func NewGuard(client redis.UniversalClient, ttl time.Duration) *Guard {
	return &Guard{locker: redislock.New(client), ttl: ttl}
}

// Do runs fn while holding key. It fails with ErrLocked without running fn when the
// lock is taken.
func (g *Guard) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	lock, err := g.locker.Obtain(ctx, key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
