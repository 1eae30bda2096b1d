// Package store persists homes, tasks and calendar event instances in a SQL
// database (SQLite or PostgreSQL).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"orderlyflow/internal/config"
	appLog "orderlyflow/internal/log"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store wraps a sqlx handle plus the statement builder for its dialect.
type Store struct {
	db     *sqlx.DB
	driver string
	sb     squirrel.StatementBuilderType
}

// Open connects to the configured database. For SQLite the parent
// directory of the file is created and WAL mode is enabled.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	dsn := cfg.DSN

	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("store: create data dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}

	appLog.Info("store opened", "driver", driver)
	return New(db, driver), nil
}

// New wraps an existing connection. driver selects the placeholder style.
func New(db *sqlx.DB, driver string) *Store {
	sb := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	if driver == DriverPostgres {
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return &Store{db: db, driver: driver, sb: sb}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTransaction executes fn within a transaction. The transaction is
// rolled back if fn returns an error or panics.
func (s *Store) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ts := "DATETIME"
	if s.driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	schema := strings.ReplaceAll(schemaDDL, "{{ts}}", ts)

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap("migrate", "", err)
		}
	}
	appLog.Info("store schema ready", "driver", s.driver)
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS homes (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_homes_owner ON homes(owner_id);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	home_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date {{ts}},
	priority TEXT NOT NULL DEFAULT 'medium',
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
	recurrence_pattern TEXT NOT NULL DEFAULT '',
	recurrence_end_date {{ts}},
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);

CREATE TABLE IF NOT EXISTS calendar_events (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	start_at {{ts}} NOT NULL,
	end_at {{ts}},
	all_day BOOLEAN NOT NULL DEFAULT FALSE,
	location TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT 'gray',
	task_id TEXT NOT NULL DEFAULT '',
	home_id TEXT NOT NULL DEFAULT '',
	is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
	recurrence_pattern TEXT NOT NULL DEFAULT '',
	recurrence_end_date {{ts}},
	series_id TEXT NOT NULL DEFAULT '',
	external_uid TEXT NOT NULL DEFAULT '',
	created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_owner_start ON calendar_events(owner_id, start_at);
CREATE INDEX IF NOT EXISTS idx_events_series ON calendar_events(series_id);
CREATE INDEX IF NOT EXISTS idx_events_task ON calendar_events(task_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_external ON calendar_events(owner_id, external_uid, start_at) WHERE external_uid <> ''
`
