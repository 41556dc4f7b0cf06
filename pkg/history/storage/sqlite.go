package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"relaydesk/relay/pkg/history"
	"relaydesk/relay/pkg/proxy/types"
)

// SQLite driver names as registered with database/sql.
const (
	// DriverModernc is the pure Go driver (modernc.org/sqlite).
	DriverModernc = "sqlite"

	// DriverMattn is the cgo driver (github.com/mattn/go-sqlite3).
	DriverMattn = "sqlite3"
)

var errClosed = errors.New("storage is closed")

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" opens a private in-memory
	// database.
	Path string

	// Driver is DriverModernc or DriverMattn.
	// Default: DriverModernc
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 1
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/relay.db",
		Driver:       DriverModernc,
		MaxOpenConns: 1,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements history.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, applies pragmas and creates the
// schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}

	logger := slog.Default().With("component", "history.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, history.NewStorageError("sqlite", "open", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers without relying on busy retries.
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets pragmas and creates the schema.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return history.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return history.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return history.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return history.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return history.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return history.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Store persists an event.
func (s *SQLiteStorage) Store(ctx context.Context, event *history.Event) error {
	var cfg any
	if event.Config != nil {
		data, err := json.Marshal(event.Config)
		if err != nil {
			return history.NewStorageError("sqlite", "store", err)
		}
		cfg = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, operation, success, message, error, config, occurred_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		string(event.Operation),
		boolToInt(event.Success),
		nullString(event.Message),
		nullString(event.Error),
		cfg,
		event.Time.UnixNano(),
		int64(event.Duration),
	)
	if err != nil {
		return history.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves events matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *history.Query) ([]*history.Event, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(query)

	order := "DESC"
	if query.Ascending() {
		order = "ASC"
	}

	sqlQuery := "SELECT id, operation, success, message, error, config, occurred_at, duration_ns FROM events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += fmt.Sprintf(" ORDER BY occurred_at %s, id %s LIMIT ? OFFSET ?", order, order)
	args = append(args, query.EffectiveLimit(), query.Offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, history.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*history.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, history.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, history.NewStorageError("sqlite", "query", err)
	}

	return events, nil
}

// Count returns the number of events matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *history.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, history.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *history.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, history.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, history.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping verifies the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return history.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return history.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause (without the keyword) from the
// query filters.
func buildWhereClause(query *history.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "occurred_at <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if query.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, string(query.Operation))
	}
	if query.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, boolToInt(*query.Success))
	}

	return strings.Join(conditions, " AND "), args
}

func scanEvent(rows *sql.Rows) (*history.Event, error) {
	var (
		event      history.Event
		operation  string
		success    int64
		message    sql.NullString
		errMsg     sql.NullString
		cfg        sql.NullString
		occurredAt int64
		durationNS int64
	)

	if err := rows.Scan(&event.ID, &operation, &success, &message, &errMsg, &cfg, &occurredAt, &durationNS); err != nil {
		return nil, err
	}

	event.Operation = types.Operation(operation)
	event.Success = success != 0
	event.Message = message.String
	event.Error = errMsg.String
	event.Time = time.Unix(0, occurredAt).UTC()
	event.Duration = time.Duration(durationNS)

	if cfg.Valid && cfg.String != "" {
		var pc types.ProxyConfig
		if err := json.Unmarshal([]byte(cfg.String), &pc); err != nil {
			return nil, fmt.Errorf("decode config for event %s: %w", event.ID, err)
		}
		event.Config = &pc
	}

	return &event, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
