// Package memory implements ports.SessionStore as an in-process map.
// It has no external dependency and is the default backend.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fastmcp/sessions/internal/logging"
	"github.com/fastmcp/sessions/pkg/domain"
)

// maxSweepInterval caps how rarely the background sweep runs, so a very
// large TTL still gets its garbage collected within a minute.
const maxSweepInterval = time.Minute

// Store implements ports.SessionStore in memory.
// Safe for concurrent use. Expiry is enforced twice: lazily on every access,
// and by a background sweep at min(ttl/2, 60s).
type Store struct {
	// Plain mutex: even reads may evict lazily, so there is no read-only path.
	mu     sync.Mutex
	data   map[string]*domain.SessionRecord
	closed bool

	ttl    time.Duration
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the idle expiration for sessions. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithLogger configures a logger for sweep events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a new in-memory store and starts its sweep loop.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data:   make(map[string]*domain.SessionRecord),
		ttl:    domain.DefaultTTL,
		logger: logging.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl > 0 {
		go s.sweep(s.sweepInterval())
	}
	return s
}

func (s *Store) sweepInterval() time.Duration {
	interval := s.ttl / 2
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return interval
}

// sweep evicts expired entries until Close. The ticker goroutine holds no
// lock between ticks, so foreground calls are never blocked for a full scan.
func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *Store) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.data {
		if rec.Expired(now, s.ttl) {
			delete(s.data, id)
			s.logger.Debug("evicted expired session", "session_id", id)
		}
	}
}

// Create builds a record from the supplied fields and stores it.
func (s *Store) Create(ctx context.Context, fields map[string]any) (string, error) {
	rec, err := domain.NewRecord(fields, time.Now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", domain.ErrStoreClosed
	}
	s.data[rec.SessionID] = rec
	return rec.SessionID, nil
}

// Get returns a copy of the record, or (nil, nil) when absent or expired.
func (s *Store) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.live(id, time.Now())
	if rec == nil {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Update merges the supplied fields and refreshes lastActivityAt.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.live(id, now)
	if rec == nil {
		return false, nil
	}

	// Merge onto a copy so a bad payload cannot leave the stored record
	// half-patched.
	merged := rec.Clone()
	if err := merged.Apply(fields); err != nil {
		return false, err
	}
	merged.Touch(now)
	s.data[id] = merged
	return true, nil
}

// Touch refreshes lastActivityAt without changing other fields.
func (s *Store) Touch(ctx context.Context, id string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.live(id, now)
	if rec == nil {
		return false, nil
	}
	rec.Touch(now)
	return true, nil
}

// Delete removes the record, reporting false if it was already absent.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[id]
	if !ok {
		return false, nil
	}
	delete(s.data, id)
	// An expired entry counts as already absent even if the sweep has not
	// reached it yet.
	if rec.Expired(time.Now(), s.ttl) {
		return false, nil
	}
	return true, nil
}

// List returns the ids of all live records matching the filter.
func (s *Store) List(ctx context.Context, filter map[string]any) ([]string, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.data))
	for id, rec := range s.data {
		if rec.Expired(now, s.ttl) {
			delete(s.data, id)
			continue
		}
		if rec.MatchesAuth(filter) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Count returns the number of live records.
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.List(ctx, nil)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close stops the sweep loop and clears the map. Idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		s.data = make(map[string]*domain.SessionRecord)
	})
	return nil
}

// live returns the stored record if it exists and is not expired, evicting
// it otherwise. Caller must hold the write lock.
func (s *Store) live(id string, now time.Time) *domain.SessionRecord {
	rec, ok := s.data[id]
	if !ok {
		return nil
	}
	if rec.Expired(now, s.ttl) {
		delete(s.data, id)
		return nil
	}
	return rec
}
