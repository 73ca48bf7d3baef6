package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/ledger"
)

// LedgerStore implements ledger.EntryStore on the ledger_entries table
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new store instance
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Get returns the entry for identity, or nil when there is none
func (s *LedgerStore) Get(ctx context.Context, identity string) (*ledger.Entry, error) {
	query := `SELECT identity, message_id, serialized, created_at, touched_at, needs_refresh
		FROM ledger_entries WHERE identity = ?`
	e, err := scanEntry(s.db.conn.QueryRowContext(ctx, query, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get ledger entry", goerr.V("identity", identity))
	}
	return e, nil
}

// Put inserts or replaces an entry
func (s *LedgerStore) Put(ctx context.Context, e *ledger.Entry) error {
	query := `INSERT OR REPLACE INTO ledger_entries
		(identity, message_id, serialized, created_at, touched_at, needs_refresh)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.conn.ExecContext(ctx, query,
		e.Identity,
		e.MessageID,
		e.Serialized,
		formatTime(e.CreatedAt),
		formatTime(e.TouchedAt),
		boolToInt(e.NeedsRefresh),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to put ledger entry", goerr.V("identity", e.Identity))
	}
	return nil
}

// Delete removes an entry
func (s *LedgerStore) Delete(ctx context.Context, identity string) error {
	query := `DELETE FROM ledger_entries WHERE identity = ?`
	if _, err := s.db.conn.ExecContext(ctx, query, identity); err != nil {
		return goerr.Wrap(err, "failed to delete ledger entry", goerr.V("identity", identity))
	}
	return nil
}

// List returns all entries
func (s *LedgerStore) List(ctx context.Context) ([]*ledger.Entry, error) {
	query := `SELECT identity, message_id, serialized, created_at, touched_at, needs_refresh
		FROM ledger_entries ORDER BY touched_at`
	rows, err := s.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list ledger entries")
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*ledger.Entry, error) {
	var (
		e                ledger.Entry
		created, touched string
		needsRefresh     int
	)
	if err := row.Scan(&e.Identity, &e.MessageID, &e.Serialized, &created, &touched, &needsRefresh); err != nil {
		return nil, err
	}

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, goerr.Wrap(err, "invalid created_at", goerr.V("value", created))
	}
	if e.TouchedAt, err = time.Parse(time.RFC3339Nano, touched); err != nil {
		return nil, goerr.Wrap(err, "invalid touched_at", goerr.V("value", touched))
	}
	e.NeedsRefresh = needsRefresh == 1
	return &e, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
