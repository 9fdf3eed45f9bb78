// Package redis implements ports.SessionStore on a Redis-shaped key-value
// backend with per-key TTL and set membership. Records live under
// prefix+sessionId; a secondary index of live ids lives under prefix+"index"
// because the backend cannot scan by content.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/fastmcp/sessions/internal/logging"
	"github.com/fastmcp/sessions/pkg/domain"
)

// indexSuffix names the set of live session ids, relative to the key prefix.
const indexSuffix = "index"

// Store implements ports.SessionStore using Redis.
//
// The backend client is built lazily on the first operation that needs it, so
// constructing a Store never requires the backend to be reachable. Concurrent
// first callers share one connection attempt and its outcome; a failed
// attempt is memoized, not retried per call.
//
// Update and Touch are read-modify-write and intentionally not atomic:
// concurrent writers to the same id race and the last writer wins.
type Store struct {
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	dial func(ctx context.Context) (*backend.Client, error)

	initMu      sync.Mutex
	initialized bool
	initErr     error
	client      *backend.Client
	closed      bool
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the idle expiration for sessions. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for records and the live-id index.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger configures a logger for swallowed best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Redis store that will connect on first use.
func New(address, password string, db int, opts ...Option) *Store {
	store := newStore(opts)
	store.dial = func(ctx context.Context) (*backend.Client, error) {
		client := backend.NewClient(&backend.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to reach session backend: %w", err)
		}
		return client, nil
	}
	return store
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := newStore(opts)
	store.initialized = true
	store.client = client
	return store
}

func newStore(opts []Option) *Store {
	store := &Store{
		prefix: domain.DefaultKeyPrefix,
		ttl:    domain.DefaultTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + indexSuffix
}

// backendClient returns the shared client, dialing it on first use.
// The mutex makes concurrent first callers wait on a single attempt; the
// result, success or failure, is memoized for every later call.
func (s *Store) backendClient(ctx context.Context) (*backend.Client, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	if s.initialized {
		return s.client, s.initErr
	}
	s.initialized = true
	s.client, s.initErr = s.dial(ctx)
	return s.client, s.initErr
}

// Create writes the record and its index membership in one transactional
// batch. If the batch fails as a whole, no id is left referencing a missing
// record.
func (s *Store) Create(ctx context.Context, fields map[string]any) (string, error) {
	client, err := s.backendClient(ctx)
	if err != nil {
		return "", err
	}

	rec, err := domain.NewRecord(fields, time.Now())
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session record: %w", err)
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, s.key(rec.SessionID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), rec.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}

	return rec.SessionID, nil
}

// Get returns the record for id, or (nil, nil) when absent, expired, or
// undecodable. A miss opportunistically removes the id from the index.
func (s *Store) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	client, err := s.backendClient(ctx)
	if err != nil {
		return nil, err
	}
	return s.getRecord(ctx, client, id)
}

func (s *Store) getRecord(ctx context.Context, client *backend.Client, id string) (*domain.SessionRecord, error) {
	val, err := client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			// TTL already reclaimed the record; heal the index.
			s.desync(ctx, client, id)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		// A corrupt record reads as absent; drop it so it cannot shadow
		// its id until the TTL fires.
		s.logger.Warn("dropping corrupt session record", "session_id", id, "err", err)
		s.removeKeys(ctx, client, id)
		return nil, nil
	}

	// Clock-edge guard: the key may outlive logical expiry briefly.
	if rec.Expired(time.Now(), s.ttl) {
		s.removeKeys(ctx, client, id)
		return nil, nil
	}

	return &rec, nil
}

// Update merges the supplied fields and rewrites the record with a fresh TTL.
// Read-modify-write, last-writer-wins.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) (bool, error) {
	client, err := s.backendClient(ctx)
	if err != nil {
		return false, err
	}

	rec, err := s.getRecord(ctx, client, id)
	if err != nil {
		s.logger.Debug("session update read failed", "session_id", id, "err", err)
		return false, nil
	}
	if rec == nil {
		return false, nil
	}

	if err := rec.Apply(fields); err != nil {
		return false, err
	}
	rec.Touch(time.Now())

	if err := s.writeRecord(ctx, client, rec); err != nil {
		s.logger.Debug("session update write failed", "session_id", id, "err", err)
		return false, nil
	}
	return true, nil
}

// Touch refreshes lastActivityAt and the key TTL without changing fields.
func (s *Store) Touch(ctx context.Context, id string) (bool, error) {
	return s.Update(ctx, id, nil)
}

// writeRecord rewrites the record with a refreshed TTL and repairs its index
// membership in the same batch.
func (s *Store) writeRecord(ctx context.Context, client *backend.Client, rec *domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, s.key(rec.SessionID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), rec.SessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// Delete removes the record key and the index membership in one batch.
// Transport failure is non-fatal: the TTL will eventually reclaim storage.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	client, err := s.backendClient(ctx)
	if err != nil {
		return false, err
	}

	pipe := client.TxPipeline()
	delCmd := pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Debug("session delete failed", "session_id", id, "err", err)
		return false, nil
	}
	return delCmd.Val() > 0, nil
}

// List reads the index and validates each member. Without a filter it only
// probes record existence; with one it fetches each record and applies the
// auth equality rule. Cost is O(index size) round trips either way, which is
// acceptable at session-count scale.
func (s *Store) List(ctx context.Context, filter map[string]any) ([]string, error) {
	client, err := s.backendClient(ctx)
	if err != nil {
		return nil, err
	}

	members, err := client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session index: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, id := range members {
		if len(filter) == 0 {
			exists, err := client.Exists(ctx, s.key(id)).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to probe session record: %w", err)
			}
			if exists == 0 {
				s.desync(ctx, client, id)
				continue
			}
			ids = append(ids, id)
			continue
		}

		rec, err := s.getRecord(ctx, client, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if rec.MatchesAuth(filter) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Count returns the number of live records behind the index.
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.List(ctx, nil)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close releases the client if one was ever built. Idempotent.
func (s *Store) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// desync removes a stale id from the index, best effort.
func (s *Store) desync(ctx context.Context, client *backend.Client, id string) {
	if err := client.SRem(ctx, s.indexKey(), id).Err(); err != nil {
		s.logger.Debug("failed to prune session index", "session_id", id, "err", err)
	}
}

// removeKeys drops both the record key and its index membership, best effort.
func (s *Store) removeKeys(ctx context.Context, client *backend.Client, id string) {
	pipe := client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Debug("failed to remove session keys", "session_id", id, "err", err)
	}
}
