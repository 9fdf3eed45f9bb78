package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fastmcp/sessions/internal/logging"
	"github.com/fastmcp/sessions/pkg/ports"
)

// lockTTL bounds how long a terminal delete may hold the distributed lock.
const lockTTL = 5 * time.Second

// Manager tracks the live syncers of one process, one per session id.
// It is the piece the connection layer talks to: open a session when a client
// connects, look it up by id while it is live, close it when the client goes.
type Manager struct {
	store    ports.SessionStore
	locker   ports.SessionLocker
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.Mutex
	live map[string]*Syncer
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking around terminal deletes, for
// deployments that want to serialize cross-instance writers on one id.
func WithLocker(locker ports.SessionLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager and its syncers.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSyncDebounce sets the coalescing window handed to each syncer.
func WithSyncDebounce(d time.Duration) Option {
	return func(m *Manager) {
		m.debounce = d
	}
}

// NewManager creates a manager on top of the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		logger:   logging.NewNop(),
		debounce: DefaultDebounce,
		live:     make(map[string]*Syncer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a new persisted session and registers its syncer.
// The create is awaited; its failure propagates and nothing is registered.
func (m *Manager) Open(ctx context.Context, initialFields map[string]any) (*Syncer, error) {
	syncer := NewSyncer(m.store,
		WithDebounce(m.debounce),
		WithSyncLogger(m.logger),
	)
	id, err := syncer.Start(ctx, initialFields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.live[id] = syncer
	m.mu.Unlock()
	return syncer, nil
}

// Get returns the live syncer for id, if this process owns one.
func (m *Manager) Get(id string) (*Syncer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	syncer, ok := m.live[id]
	return syncer, ok
}

// Live returns how many sessions this process currently owns.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close terminates one session: the syncer's pending write is canceled and
// the record deleted. Unknown ids are a no-op.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	syncer, ok := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.closeSyncer(ctx, id, syncer)
}

// CloseAll terminates every live session, joining any errors.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	live := m.live
	m.live = make(map[string]*Syncer)
	m.mu.Unlock()

	var errs []error
	for id, syncer := range live {
		if err := m.closeSyncer(ctx, id, syncer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeSyncer(ctx context.Context, id string, syncer *Syncer) error {
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, lockTTL)
		if err != nil {
			// Locking is coordination, not correctness: proceed unlocked.
			m.logger.Warn("failed to lock session for close", "session_id", id, "err", err)
		} else {
			defer func() {
				if err := unlock(ctx); err != nil {
					m.logger.Warn("failed to release session lock", "session_id", id, "err", err)
				}
			}()
		}
	}
	return syncer.Close(ctx)
}
