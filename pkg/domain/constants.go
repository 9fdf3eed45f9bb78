package domain

import "time"

// Defaults for the store configuration surface.
const (
	// DefaultKeyPrefix namespaces record and index keys in shared backends.
	DefaultKeyPrefix = "fastmcp:session:"

	// DefaultTTL is the idle duration after which a record expires.
	DefaultTTL = time.Hour
)
