package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lock is a distributed mutex over a single Redis key, used to serialize
// cache-miss work for a hot key (spec.md 4.L).
type Lock struct {
	ops RedisOps
}

// NewLock builds a Lock.
func NewLock(ops RedisOps) *Lock {
	return &Lock{ops: ops}
}

// Acquire attempts to take the lock named name for timeout, via an atomic
// SET-if-not-exists-with-expiry. Returns the random token stored as the
// lock's value, and whether the lock was actually acquired. Release does
// not take or check this token.
func (l *Lock) Acquire(ctx context.Context, name string, timeout time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.ops.SetNX(ctx, lockKey(name), token, timeout)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lock key unconditionally.
func (l *Lock) Release(ctx context.Context, name string) error {
	return l.ops.Delete(ctx, lockKey(name))
}
