package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmcp/sessions/pkg/adapters/memory"
	"github.com/fastmcp/sessions/pkg/domain"
	"github.com/fastmcp/sessions/pkg/ports"
	"github.com/fastmcp/sessions/pkg/session"
)

// fakeLocker records lock traffic to verify close-time coordination.
type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
}

func (l *fakeLocker) Lock(ctx context.Context, sessionID string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.locked = append(l.locked, sessionID)
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		l.unlocked = append(l.unlocked, sessionID)
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_OpenAndClose(t *testing.T) {
	store := memory.NewStore(memory.WithTTL(time.Minute))
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewManager(store)
	ctx := context.Background()

	syncer, err := manager.Open(ctx, map[string]any{
		"auth": map[string]any{"role": "admin"},
	})
	require.NoError(t, err)
	id := syncer.ID()
	require.NotEmpty(t, id)

	got, ok := manager.Get(id)
	assert.True(t, ok)
	assert.Same(t, syncer, got)
	assert.Equal(t, 1, manager.Live())

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec, "open persists the record synchronously")

	require.NoError(t, manager.Close(ctx, id))
	assert.Equal(t, 0, manager.Live())

	rec, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec, "close removes the persisted record")

	require.NoError(t, manager.Close(ctx, id), "closing an unknown id is a no-op")
}

func TestManager_SyncsThroughStore(t *testing.T) {
	store := memory.NewStore(memory.WithTTL(time.Minute))
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewManager(store, session.WithSyncDebounce(20*time.Millisecond))
	ctx := context.Background()

	syncer, err := manager.Open(ctx, nil)
	require.NoError(t, err)

	syncer.Enqueue(map[string]any{"connectionState": domain.StateReady})

	assert.Eventually(t, func() bool {
		rec, err := store.Get(ctx, syncer.ID())
		return err == nil && rec != nil && rec.ConnectionState == domain.StateReady
	}, time.Second, 5*time.Millisecond, "the mutation lands in the store after the debounce window")
}

func TestManager_CloseAll(t *testing.T) {
	store := memory.NewStore(memory.WithTTL(time.Minute))
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewManager(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := manager.Open(ctx, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 3, manager.Live())

	require.NoError(t, manager.CloseAll(ctx))
	assert.Equal(t, 0, manager.Live())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestManager_LockerWrapsClose(t *testing.T) {
	store := memory.NewStore(memory.WithTTL(time.Minute))
	t.Cleanup(func() { _ = store.Close() })
	locker := &fakeLocker{}
	manager := session.NewManager(store, session.WithLocker(locker))
	ctx := context.Background()

	syncer, err := manager.Open(ctx, nil)
	require.NoError(t, err)
	id := syncer.ID()

	require.NoError(t, manager.Close(ctx, id))
	assert.Equal(t, []string{id}, locker.locked)
	assert.Equal(t, []string{id}, locker.unlocked)
}

func TestManager_OpenPropagatesCreateFailure(t *testing.T) {
	store := newRecordingStore()
	store.failCreate = assert.AnError
	manager := session.NewManager(store)

	_, err := manager.Open(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 0, manager.Live(), "nothing is registered on a failed create")
}
