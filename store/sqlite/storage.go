// Package sqlite persists sessions, agents, messages, mail, and marks in a
// single SQLite database file, following the same client-wrapper and
// embedded-migration conventions as the rest of this codebase's storage
// layer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	zlog "github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// Storage wraps the single database handle used by the core. Unlike the
// teacher's two-database (core + kv) layout, ikigai has no separate
// key-value store to migrate, so Storage carries one *sql.DB.
type Storage struct {
	db *sql.DB
}

// Open creates (if needed) the parent directory, opens the SQLite file at
// dbPath, pings it, and migrates it to the latest schema version.
func Open(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite gives each connection its own :memory: database, so
	// a pool of more than one connection would see an empty schema on any
	// connection but the first. A single connection is plenty for this
	// workload's access pattern (one REPL process, no concurrent writers).
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.MigrateUp("ikigai"); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	zlog.Debug().Str("query", query).Msg("executing sqlite statement")
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Storage) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	zlog.Debug().Str("query", query).Msg("querying sqlite")
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Storage) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	zlog.Debug().Str("query", query).Msg("querying sqlite row")
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *Storage) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, opts)
}
