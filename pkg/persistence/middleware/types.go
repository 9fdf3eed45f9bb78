// Package middleware provides decorators that wrap a SessionStore to add
// cross-cutting behavior without touching the backends.
package middleware

import "github.com/fastmcp/sessions/pkg/ports"

// Middleware allows wrapping a SessionStore to add behavior.
type Middleware func(ports.SessionStore) ports.SessionStore

// Chain applies middlewares around a store, first in the slice outermost.
func Chain(store ports.SessionStore, mws ...Middleware) ports.SessionStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
