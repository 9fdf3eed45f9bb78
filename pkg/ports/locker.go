package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// SessionLocker provides optional cross-instance coordination for callers
// that want to serialize writes against one session id. The stores themselves
// stay last-writer-wins; locking is opt-in on top.
type SessionLocker interface {
	// Lock attempts to acquire a lock for the given session id.
	// It blocks until the lock is acquired or the context is canceled.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error)
}
