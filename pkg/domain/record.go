package domain

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"
)

// ConnectionState defines the lifecycle phase of the live connection a
// record mirrors.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting" // Handshake in progress
	StateReady      ConnectionState = "ready"      // Initialized, accepting requests
	StateClosed     ConnectionState = "closed"     // Terminated cleanly
	StateError      ConnectionState = "error"      // Terminated by failure
)

// SessionRecord is the persisted snapshot of one client session.
// It serializes as a flat JSON object so any key-value backend can hold it.
//
// SessionID is assigned by the store at creation and never changes.
// LastActivityAt is never before CreatedAt and never moves backwards; a
// record is logically expired once now - LastActivityAt exceeds the store TTL,
// regardless of which backend holds it.
type SessionRecord struct {
	SessionID string `json:"sessionId" yaml:"sessionId" mapstructure:"sessionId"`

	// Auth is the opaque payload produced by the authentication layer.
	// Nil means the session carries no auth information.
	Auth map[string]any `json:"auth,omitempty" yaml:"auth,omitempty" mapstructure:"auth"`

	// Capabilities is the capability surface negotiated at initialize.
	Capabilities *mcp.ClientCapabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty" mapstructure:"capabilities"`

	// ClientInfo records the client name/version advertised at initialize.
	ClientInfo *mcp.Implementation `json:"clientInfo,omitempty" yaml:"clientInfo,omitempty" mapstructure:"clientInfo"`

	ConnectionState ConnectionState `json:"connectionState" yaml:"connectionState" mapstructure:"connectionState"`

	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt" mapstructure:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt" yaml:"lastActivityAt" mapstructure:"lastActivityAt"`

	// Headers are request headers captured when the session was established.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`

	LogLevel mcp.LoggingLevel `json:"logLevel,omitempty" yaml:"logLevel,omitempty" mapstructure:"logLevel"`

	// Roots are the filesystem roots the client has exposed.
	Roots []mcp.Root `json:"roots,omitempty" yaml:"roots,omitempty" mapstructure:"roots"`
}

// NewRecord builds a record from caller-supplied fields.
// sessionId, createdAt and lastActivityAt are store-owned: supplied values for
// them are discarded and replaced by a fresh UUID and the given instant.
func NewRecord(fields map[string]any, now time.Time) (*SessionRecord, error) {
	rec := &SessionRecord{
		SessionID:       uuid.NewString(),
		ConnectionState: StateConnecting,
	}
	if err := rec.Apply(fields); err != nil {
		return nil, err
	}
	rec.CreatedAt = now
	rec.LastActivityAt = now
	return rec, nil
}

// Apply merges the supplied fields onto the record. Only supplied keys change.
// sessionId and createdAt are always forced back to their current values, so a
// patch can never re-identify or rejuvenate a record.
func (r *SessionRecord) Apply(fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	id, created, last := r.SessionID, r.CreatedAt, r.LastActivityAt

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: r})
	if err != nil {
		return fmt.Errorf("failed to build field decoder: %w", err)
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("failed to merge session fields: %w", err)
	}

	r.SessionID = id
	r.CreatedAt = created
	r.LastActivityAt = last
	return nil
}

// Touch advances LastActivityAt to now. It never moves it backwards.
func (r *SessionRecord) Touch(now time.Time) {
	if now.After(r.LastActivityAt) {
		r.LastActivityAt = now
	}
}

// Expired reports whether the record is past its idle TTL at the given
// instant. An idle gap exactly equal to the TTL is still live.
// A non-positive ttl disables expiry.
func (r *SessionRecord) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(r.LastActivityAt) > ttl
}

// MatchesAuth reports whether the record's auth payload satisfies the filter:
// every filter key must be present and strictly equal. A record without auth
// matches only the empty filter.
func (r *SessionRecord) MatchesAuth(filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if r.Auth == nil {
		return false
	}
	for key, want := range filter {
		got, ok := r.Auth[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so stores can hand out records without sharing
// mutable state with callers.
func (r *SessionRecord) Clone() *SessionRecord {
	cp := *r
	if r.Auth != nil {
		cp.Auth = make(map[string]any, len(r.Auth))
		for k, v := range r.Auth {
			cp.Auth[k] = v
		}
	}
	if r.Headers != nil {
		cp.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			cp.Headers[k] = v
		}
	}
	if r.Capabilities != nil {
		caps := *r.Capabilities
		cp.Capabilities = &caps
	}
	if r.ClientInfo != nil {
		info := *r.ClientInfo
		cp.ClientInfo = &info
	}
	if r.Roots != nil {
		cp.Roots = append([]mcp.Root(nil), r.Roots...)
	}
	return &cp
}
