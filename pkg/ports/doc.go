/*
Package ports defines the driven ports (interfaces) of the session layer.

These interfaces decouple session handling from concrete backends, allowing
the same connection code to run against an in-process map or a networked
key-value store.

# Key Interfaces

  - SessionStore: persists, expires and lists SessionRecords.
  - SessionLocker: optional distributed locking for serializing writers.

RunSessionStoreContract is a shared test suite every SessionStore
implementation must pass; both bundled adapters run it.
*/
package ports
