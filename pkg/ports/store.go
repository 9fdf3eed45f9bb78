package ports

import (
	"context"

	"github.com/fastmcp/sessions/pkg/domain"
)

// SessionStore is the persistence boundary consumed by the connection layer.
// Implementations keep per-session records durable across restarts and,
// for networked backends, shared across horizontally scaled instances.
//
// Absent is not an error: unknown or expired ids surface as (nil, nil) from
// Get and false from Update/Touch/Delete. Errors are reserved for backend
// failures and invalid field payloads.
type SessionStore interface {
	// Create persists a new record built from the supplied fields and returns
	// its store-assigned id. sessionId, createdAt and lastActivityAt are
	// auto-assigned; supplied values for them are ignored. A failed durable
	// write fails the call: the id is the source of truth for session
	// identity, so it must never exist without its record.
	Create(ctx context.Context, fields map[string]any) (string, error)

	// Get returns the record for id, or (nil, nil) when the id is unknown,
	// expired, or its stored form cannot be decoded.
	Get(ctx context.Context, id string) (*domain.SessionRecord, error)

	// Update merges only the supplied fields into the record and refreshes
	// lastActivityAt. sessionId is always forced back to its original value.
	// Returns false when the id is unknown or expired.
	Update(ctx context.Context, id string, fields map[string]any) (bool, error)

	// Touch refreshes lastActivityAt (and the backend TTL) without changing
	// any other field. Returns false when the id is unknown or expired.
	Touch(ctx context.Context, id string) (bool, error)

	// Delete removes the record. Returns false when it was already absent.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns the ids of all non-expired records. With a filter, only
	// ids whose auth payload matches every filter key by strict equality are
	// returned; records without auth are excluded whenever a filter is given.
	List(ctx context.Context, filter map[string]any) ([]string, error)

	// Count returns the cardinality of List with no filter.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources. It is idempotent.
	Close() error
}
