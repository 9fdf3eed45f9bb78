package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fastmcp/sessions/internal/logging"
	"github.com/fastmcp/sessions/pkg/ports"
)

// DefaultDebounce is the quiet period mutations are coalesced over before a
// store write is issued.
const DefaultDebounce = 100 * time.Millisecond

// Syncer mirrors one live session's observable state into its store entry,
// write-behind. Mutations are debounced: the first Enqueue in a window arms a
// single timer, later ones within the window only merge into the pending
// patch, and the fire issues exactly one Update carrying the latest state.
//
// The store is an eventually-consistent mirror, not the source of truth for
// the live connection: every sync after the initial Create is best-effort,
// and a persistence failure never fails the mutation that scheduled it.
type Syncer struct {
	store    ports.SessionStore
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	id      string
	timer   *time.Timer
	pending map[string]any
	closed  bool
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithDebounce sets the coalescing window for store writes.
func WithDebounce(d time.Duration) SyncOption {
	return func(s *Syncer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithSyncLogger configures a logger for swallowed sync failures.
func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// NewSyncer creates a syncer bound to the given store.
func NewSyncer(store ports.SessionStore, opts ...SyncOption) *Syncer {
	s := &Syncer{
		store:    store,
		logger:   logging.NewNop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the initial, awaited Create. Its failure is fatal and
// propagated: the externally visible session id originates here, so a session
// cannot exist without it.
func (s *Syncer) Start(ctx context.Context, initialFields map[string]any) (string, error) {
	id, err := s.store.Create(ctx, initialFields)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	return id, nil
}

// ID returns the store-assigned session id, empty before Start.
func (s *Syncer) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Enqueue merges the supplied fields into the pending patch and arms the
// debounce timer if none is pending. Safe to call from any goroutine; a call
// after Close is a no-op.
func (s *Syncer) Enqueue(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.id == "" {
		return
	}
	if s.pending == nil {
		s.pending = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		s.pending[k] = v
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.fire)
	}
}

// fire runs on the timer goroutine when the debounce window elapses.
func (s *Syncer) fire() {
	id, patch := s.takePending(false)
	s.write(context.Background(), id, patch)
}

// Flush forces any pending patch out immediately, canceling the armed timer.
func (s *Syncer) Flush(ctx context.Context) {
	id, patch := s.takePending(true)
	s.write(ctx, id, patch)
}

// takePending detaches the pending patch. Stopping the timer is only needed
// when the caller is pre-empting it rather than running on it.
func (s *Syncer) takePending(stopTimer bool) (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", nil
	}
	if stopTimer && s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	patch := s.pending
	s.pending = nil
	return s.id, patch
}

func (s *Syncer) write(ctx context.Context, id string, patch map[string]any) {
	if id == "" || patch == nil {
		return
	}
	ok, err := s.store.Update(ctx, id, patch)
	if err != nil {
		s.logger.Debug("session sync failed", "session_id", id, "err", err)
		return
	}
	if !ok {
		s.logger.Debug("session sync skipped, record gone", "session_id", id)
	}
}

// Close cancels any pending timer synchronously, then issues the terminal
// Delete. The ordering prevents a late coalesced update from resurrecting a
// just-deleted record. Idempotent; the delete itself is best-effort.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	id := s.id
	s.mu.Unlock()

	if id == "" {
		return nil
	}
	if _, err := s.store.Delete(ctx, id); err != nil {
		s.logger.Debug("session terminal delete failed", "session_id", id, "err", err)
	}
	return nil
}
