package memory_test

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
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, func(t *testing.T, ttl time.Duration) ports.SessionStore {
		store := memory.NewStore(memory.WithTTL(ttl))
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestMemoryStore_SweepEvictsWithoutAccess(t *testing.T) {
	// ttl 40ms -> sweep every 20ms. No foreground call touches the record;
	// only the sweep can reclaim it.
	store := memory.NewStore(memory.WithTTL(40 * time.Millisecond))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	_, err := store.Create(ctx, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := store.Count(ctx)
		return err == nil && n == 0
	}, time.Second, 10*time.Millisecond, "sweep should evict the expired record")
}

func TestMemoryStore_CreateAfterClose(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Close())

	_, err := store.Create(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestMemoryStore_CloseClearsRecords(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := memory.NewStore(memory.WithTTL(time.Minute))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	id, err := store.Create(ctx, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, id, map[string]any{
				"connectionState": domain.StateReady,
			})
			assert.NoError(t, err)
			_, err = store.Get(ctx, id)
			assert.NoError(t, err)
			_, err = store.List(ctx, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StateReady, rec.ConnectionState)
}
