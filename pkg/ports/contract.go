package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmcp/sessions/pkg/domain"
)

// StoreFactory builds a fresh store with the given idle TTL. Implementations
// should register cleanup on t so every subtest gets an isolated backend.
type StoreFactory func(t *testing.T, ttl time.Duration) SessionStore

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, newStore StoreFactory) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		store := newStore(t, time.Minute)

		id, err := store.Create(ctx, map[string]any{
			"auth":            map[string]any{"role": "admin"},
			"connectionState": domain.StateReady,
			"headers":         map[string]string{"user-agent": "inspector"},
		})
		require.NoError(t, err, "Create should not return error")
		require.NotEmpty(t, id)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, id, rec.SessionID)
		assert.True(t, rec.LastActivityAt.Equal(rec.CreatedAt),
			"a fresh record has lastActivityAt == createdAt")
		assert.Equal(t, domain.StateReady, rec.ConnectionState)
		assert.Equal(t, "admin", rec.Auth["role"])
		assert.Equal(t, "inspector", rec.Headers["user-agent"])
	})

	t.Run("Get Unknown", func(t *testing.T) {
		store := newStore(t, time.Minute)

		rec, err := store.Get(ctx, "does-not-exist")
		require.NoError(t, err, "unknown id is not an error")
		assert.Nil(t, rec)
	})

	t.Run("Update Merges and Preserves ID", func(t *testing.T) {
		store := newStore(t, time.Minute)

		id, err := store.Create(ctx, map[string]any{
			"auth": map[string]any{"role": "user"},
		})
		require.NoError(t, err)

		ok, err := store.Update(ctx, id, map[string]any{
			"sessionId":       "forged-id",
			"connectionState": domain.StateClosed,
		})
		require.NoError(t, err)
		require.True(t, ok)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, id, rec.SessionID, "update must never change sessionId")
		assert.Equal(t, domain.StateClosed, rec.ConnectionState)
		assert.Equal(t, "user", rec.Auth["role"], "unsupplied fields survive")
		assert.False(t, rec.LastActivityAt.Before(rec.CreatedAt))
	})

	t.Run("Update Unknown", func(t *testing.T) {
		store := newStore(t, time.Minute)

		ok, err := store.Update(ctx, "does-not-exist", map[string]any{
			"connectionState": domain.StateError,
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Touch Advances Activity", func(t *testing.T) {
		store := newStore(t, time.Minute)

		id, err := store.Create(ctx, nil)
		require.NoError(t, err)

		before, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, before)

		time.Sleep(10 * time.Millisecond)

		ok, err := store.Touch(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		after, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, after)
		assert.True(t, after.LastActivityAt.After(before.LastActivityAt))
		assert.True(t, after.CreatedAt.Equal(before.CreatedAt),
			"touch must not move createdAt")
	})

	t.Run("Touch Unknown", func(t *testing.T) {
		store := newStore(t, time.Minute)

		ok, err := store.Touch(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete Is Idempotent", func(t *testing.T) {
		store := newStore(t, time.Minute)

		id, err := store.Create(ctx, nil)
		require.NoError(t, err)

		ok, err := store.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, "second delete on the same id returns false")

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("List Filters by Auth", func(t *testing.T) {
		store := newStore(t, time.Minute)

		adminID, err := store.Create(ctx, map[string]any{
			"auth": map[string]any{"role": "admin"},
		})
		require.NoError(t, err)
		userID, err := store.Create(ctx, map[string]any{
			"auth": map[string]any{"role": "user"},
		})
		require.NoError(t, err)
		anonID, err := store.Create(ctx, nil)
		require.NoError(t, err)

		all, err := store.List(ctx, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{adminID, userID, anonID}, all)

		admins, err := store.List(ctx, map[string]any{"role": "admin"})
		require.NoError(t, err)
		assert.Equal(t, []string{adminID}, admins)

		none, err := store.List(ctx, map[string]any{"role": "auditor"})
		require.NoError(t, err)
		assert.Empty(t, none)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Expiry", func(t *testing.T) {
		store := newStore(t, 50*time.Millisecond)

		id, err := store.Create(ctx, nil)
		require.NoError(t, err)

		time.Sleep(120 * time.Millisecond)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, rec, "an idle record past its ttl reads as absent")

		ok, err := store.Touch(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.Update(ctx, id, map[string]any{
			"connectionState": domain.StateReady,
		})
		require.NoError(t, err)
		assert.False(t, ok, "an expired record cannot be revived by update")
	})

	t.Run("Close Is Idempotent", func(t *testing.T) {
		store := newStore(t, time.Minute)

		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
	})
}
