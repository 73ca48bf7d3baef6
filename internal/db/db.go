// Package db provides an SQLite-backed ledger entry store. The database lives
// in memory only: its contents are gone when the process exits.
package db

import (
	"context"
	"database/sql"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

const memoryDSN = "file::memory:?mode=memory"

type DB struct {
	conn *sql.DB
}

// OpenMemory creates a private in-memory database and runs migrations
func OpenMemory(ctx context.Context) (*DB, error) {
	conn, err := sql.Open("sqlite", memoryDSN)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database")
	}
	// Every connection to :memory: is a separate database
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	// Test connection
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to ping database")
	}

	db := &DB{conn: conn}

	// Run migrations
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "migration failed")
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs database migrations
func (db *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			identity      TEXT PRIMARY KEY,
			message_id    TEXT NOT NULL,
			serialized    TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			touched_at    TEXT NOT NULL,
			needs_refresh INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_touched_at ON ledger_entries (touched_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.ExecContext(ctx, migration); err != nil {
			return goerr.Wrap(err, "failed to execute migration", goerr.V("sql", migration))
		}
	}

	return nil
}
