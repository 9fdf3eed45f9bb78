package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmcp/sessions/pkg/domain"
	"github.com/fastmcp/sessions/pkg/session"
)

// recordingStore is a map-backed SessionStore that records every call, with
// switchable failure injection.
type recordingStore struct {
	mu      sync.Mutex
	records map[string]map[string]any
	updates []map[string]any
	deletes []string

	failCreate error
	failUpdate error

	seq int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{records: make(map[string]map[string]any)}
}

func (s *recordingStore) Create(ctx context.Context, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return "", s.failCreate
	}
	s.seq++
	id := fmt.Sprintf("session-%d", s.seq)
	merged := make(map[string]any, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	s.records[id] = merged
	return id, nil
}

func (s *recordingStore) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	return nil, nil
}

func (s *recordingStore) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return false, s.failUpdate
	}
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	for k, v := range fields {
		rec[k] = v
	}
	s.updates = append(s.updates, fields)
	return true, nil
}

func (s *recordingStore) Touch(ctx context.Context, id string) (bool, error) {
	_, ok := s.records[id]
	return ok, nil
}

func (s *recordingStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}

func (s *recordingStore) List(ctx context.Context, filter map[string]any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *recordingStore) Count(ctx context.Context) (int, error) {
	ids, _ := s.List(ctx, nil)
	return len(ids), nil
}

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *recordingStore) lastUpdate() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return nil
	}
	return s.updates[len(s.updates)-1]
}

func (s *recordingStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

func (s *recordingStore) setFailUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdate = err
}

func TestSyncer_StartPropagatesCreateFailure(t *testing.T) {
	store := newRecordingStore()
	store.failCreate = errors.New("backend down")
	syncer := session.NewSyncer(store)

	_, err := syncer.Start(context.Background(), nil)
	require.Error(t, err, "the id originates from create, so its failure is fatal")
	assert.Empty(t, syncer.ID())
}

func TestSyncer_CoalescesRapidMutations(t *testing.T) {
	store := newRecordingStore()
	syncer := session.NewSyncer(store, session.WithDebounce(40*time.Millisecond))

	_, err := syncer.Start(context.Background(), nil)
	require.NoError(t, err)

	// Five mutations inside one debounce window.
	syncer.Enqueue(map[string]any{"logLevel": "debug"})
	for _, state := range []domain.ConnectionState{
		domain.StateConnecting, domain.StateReady, domain.StateError, domain.StateReady,
	} {
		syncer.Enqueue(map[string]any{"connectionState": state})
	}

	require.Eventually(t, func() bool {
		return store.updateCount() > 0
	}, time.Second, 5*time.Millisecond)

	// A generous wait to prove no further timers were armed.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, store.updateCount(), "one window, one update")

	patch := store.lastUpdate()
	assert.Equal(t, domain.StateReady, patch["connectionState"], "the fire reflects the latest state")
	assert.Equal(t, "debug", patch["logLevel"], "earlier keys in the window survive the merge")
}

func TestSyncer_CloseCancelsPendingSync(t *testing.T) {
	store := newRecordingStore()
	syncer := session.NewSyncer(store, session.WithDebounce(30*time.Millisecond))
	ctx := context.Background()

	id, err := syncer.Start(ctx, nil)
	require.NoError(t, err)

	syncer.Enqueue(map[string]any{"connectionState": domain.StateReady})
	require.NoError(t, syncer.Close(ctx))

	// Long past the debounce window: the canceled patch must not land.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, store.updateCount(), "a canceled pending sync never writes")
	assert.Equal(t, []string{id}, store.deletes)
	assert.False(t, store.has(id), "the record stays deleted, never resurrected")
}

func TestSyncer_UpdateFailureIsSwallowed(t *testing.T) {
	store := newRecordingStore()
	syncer := session.NewSyncer(store, session.WithDebounce(20*time.Millisecond))

	_, err := syncer.Start(context.Background(), nil)
	require.NoError(t, err)

	store.setFailUpdate(errors.New("backend hiccup"))
	syncer.Enqueue(map[string]any{"connectionState": domain.StateReady})
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, store.updateCount())

	// The live session is unaffected and keeps syncing once the backend is back.
	store.setFailUpdate(nil)
	syncer.Enqueue(map[string]any{"connectionState": domain.StateReady})
	assert.Eventually(t, func() bool {
		return store.updateCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSyncer_FlushPreemptsTimer(t *testing.T) {
	store := newRecordingStore()
	syncer := session.NewSyncer(store, session.WithDebounce(10*time.Second))
	ctx := context.Background()

	_, err := syncer.Start(ctx, nil)
	require.NoError(t, err)

	syncer.Enqueue(map[string]any{"connectionState": domain.StateReady})
	syncer.Flush(ctx)
	assert.Equal(t, 1, store.updateCount(), "flush writes without waiting for the window")

	syncer.Flush(ctx)
	assert.Equal(t, 1, store.updateCount(), "flush with nothing pending is a no-op")
}

func TestSyncer_EnqueueAfterCloseIsNoop(t *testing.T) {
	store := newRecordingStore()
	syncer := session.NewSyncer(store, session.WithDebounce(10*time.Millisecond))
	ctx := context.Background()

	_, err := syncer.Start(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, syncer.Close(ctx))
	require.NoError(t, syncer.Close(ctx), "close is idempotent")

	syncer.Enqueue(map[string]any{"connectionState": domain.StateReady})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, store.updateCount())
}
