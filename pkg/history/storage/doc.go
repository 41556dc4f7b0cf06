// Package storage provides history.Storage backends.
//
// MemoryStorage keeps events in process memory and is used when
// history.backend is "memory" and in tests. SQLiteStorage persists events
// to a single SQLite file through either the pure Go modernc.org/sqlite
// driver ("sqlite", the default) or the cgo github.com/mattn/go-sqlite3
// driver ("sqlite3").
package storage
