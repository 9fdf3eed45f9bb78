package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastmcp/sessions/pkg/ports"
)

// ErrLockAcquire is returned when the lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire session lock")

// retryInterval is how often a blocked Lock re-attempts acquisition.
const retryInterval = 50 * time.Millisecond

// unlockScript releases the lock only if the caller still holds it.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.SessionLocker using Redis SET NX PX.
// It shares the store's lazily-built client and key prefix, so lock keys live
// next to the records they guard.
type Locker struct {
	store *Store
}

// NewLocker creates a locker on top of an existing store.
func NewLocker(store *Store) *Locker {
	return &Locker{store: store}
}

// Lock acquires a lock for the given session id, polling until it succeeds
// or the context is canceled. The lock value is a random token so only the
// holder can release it.
func (l *Locker) Lock(ctx context.Context, sessionID string, ttl time.Duration) (ports.UnlockFunc, error) {
	client, err := l.store.backendClient(ctx)
	if err != nil {
		return nil, err
	}

	lockKey := l.store.key("lock:" + sessionID)
	token := uuid.NewString()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		success, err := client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, err)
		}
		if success {
			return func(ctx context.Context) error {
				return client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
