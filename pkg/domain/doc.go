/*
Package domain defines the persisted session entity and its invariants.

SessionRecord is the single data model shared by every store backend. It is
deliberately free of store mechanics; expiry, merging and filter matching are
expressed as methods here so all backends agree on the semantics.
*/
package domain
