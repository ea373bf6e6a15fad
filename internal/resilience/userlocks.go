package resilience

import (
	"context"

	"github.com/zeebo/xxh3"
)

// DefaultLockShards is the default size of the user lock pool.
const DefaultLockShards = 256

// UserLocks serializes work per user id over a fixed pool of locks. A user id
// always maps to the same shard, so work for one user never overlaps; unrelated
// users that share a shard are serialized too. Waiters are admitted in arrival
// order.
type UserLocks struct {
	shards []chan struct{}
}

// NewUserLocks creates a pool of n locks; n <= 0 takes DefaultLockShards.
func NewUserLocks(n int) *UserLocks {
	if n <= 0 {
		n = DefaultLockShards
	}
	shards := make([]chan struct{}, n)
	for i := range shards {
		shards[i] = make(chan struct{}, 1)
	}
	return &UserLocks{shards: shards}
}

func (l *UserLocks) shard(userID string) chan struct{} {
	return l.shards[xxh3.HashString(userID)%uint64(len(l.shards))]
}

// Lock blocks until the user's lock is held or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (l *UserLocks) Lock(ctx context.Context, userID string) (func(), error) {
	ch := l.shard(userID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs fn while holding the user's lock.
func (l *UserLocks) Do(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	unlock, err := l.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}
