// Package history keeps a durable log of proxy lifecycle transitions.
//
// Every start, stop and reconfigure performed by the lifecycle manager is
// turned into an Event and written to a Storage backend by the recorder
// subpackage. Events can be listed with a Query and are pruned by the
// retention subpackage.
//
// Backends live in the storage subpackage: an in-memory store for tests
// and ephemeral runs, and SQLite for persistence.
package history
