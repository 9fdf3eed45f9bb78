/*
Package sessions keeps per-connection session state durable across process
restarts and shareable across horizontally scaled server instances.

It is the persistence layer of an MCP-style server framework: the protocol
layer owns the live connection and talks to this package only through the
SessionStore port. Two backends ship out of the box — an in-process map with
a background expiry sweep, and a Redis-backed store with per-key TTL and a
secondary index of live ids. A write-behind Syncer mirrors live mutations
into the store without blocking protocol handling, coalescing rapid churn
into single writes.

Persistence here is a best-effort mirror: only the initial create is awaited
and fatal, because the session id originates from it. Everything after is
eventually consistent, and availability of the live connection always takes
precedence over strict durability of its mirrored record.

# Usage

Resolve a backend once at construction and hand sessions to a Manager:

	package main

	import (
		"context"
		"log"

		sessions "github.com/fastmcp/sessions"
		"github.com/fastmcp/sessions/pkg/session"
	)

	func main() {
		store, err := sessions.Open(sessions.Config{
			Backend: sessions.BackendRedis,
			Redis:   sessions.RedisConfig{Addr: "localhost:6379"},
		})
		if err != nil {
			log.Fatal(err)
		}
		defer store.Close()

		manager := session.NewManager(store)

		ctx := context.Background()
		s, err := manager.Open(ctx, map[string]any{
			"auth": map[string]any{"role": "admin"},
		})
		if err != nil {
			log.Fatal(err) // a session cannot exist without its durable id
		}

		// Mutations are debounced into single store writes.
		s.Enqueue(map[string]any{"connectionState": "ready"})

		// Terminal close cancels pending writes, then deletes the record.
		defer manager.Close(ctx, s.ID())
	}
*/
package sessions
