package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the event tables. Times are stored as Unix nanoseconds so
// that both SQLite drivers compare them identically.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    success INTEGER NOT NULL,
    message TEXT,
    error TEXT,
    config TEXT,
    occurred_at INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_operation ON events(operation);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
