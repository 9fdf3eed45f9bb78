/*
Package session keeps live session objects mirrored into a SessionStore
without blocking protocol handling.

Syncer implements the write-behind path for one session: mutations are
coalesced over a debounce window into a single Update, the initial Create is
the only awaited (and fatal) persistence call, and closing a session cancels
any pending write before the terminal Delete so a stale patch can never
resurrect a deleted record.

Manager holds one Syncer per live session id and shuts them down together,
optionally serializing terminal deletes through a distributed lock.
*/
package session
