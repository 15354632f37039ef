package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

// DB is the subset of *pgxpool.Pool the ledger uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS statement_ledger (
    fingerprint        TEXT PRIMARY KEY,
    original_file_name TEXT        NOT NULL,
    processed_at       TIMESTAMPTZ NOT NULL,
    status             TEXT        NOT NULL,
    output_path        TEXT        NOT NULL DEFAULT '',
    reason             TEXT        NOT NULL DEFAULT ''
)`

const (
	selectEntrySQL = `
SELECT fingerprint, original_file_name, processed_at, status, output_path, reason
FROM statement_ledger
WHERE fingerprint = $1`

	insertEntrySQL = `
INSERT INTO statement_ledger (fingerprint, original_file_name, processed_at, status, output_path, reason)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (fingerprint) DO NOTHING
RETURNING fingerprint`

	listEntriesSQL = `
SELECT fingerprint, original_file_name, processed_at, status, output_path, reason
FROM statement_ledger
ORDER BY processed_at, fingerprint`
)

// PostgresLedger stores entries in the statement_ledger table.
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger wraps a pool. Call EnsureSchema once at startup.
func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger: create schema: %w", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (core.LedgerEntry, error) {
	var (
		e      core.LedgerEntry
		status string
		reason string
	)
	err := row.Scan(&e.Fingerprint, &e.OriginalFileName, &e.ProcessedAt, &status, &e.OutputPath, &reason)
	e.Status = core.OutcomeStatus(status)
	e.Reason = core.FailureKind(reason)
	return e, err
}

func (l *PostgresLedger) Lookup(ctx context.Context, fingerprint string) (core.LedgerEntry, bool, error) {
	e, err := scanEntry(l.db.QueryRow(ctx, selectEntrySQL, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.LedgerEntry{}, false, nil
	}
	if err != nil {
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: lookup: %w", err)
	}
	return e, true, nil
}

func (l *PostgresLedger) Append(ctx context.Context, entry core.LedgerEntry) (core.LedgerEntry, bool, error) {
	if err := validate(entry); err != nil {
		return core.LedgerEntry{}, false, err
	}

	var fp string
	err := l.db.QueryRow(ctx, insertEntrySQL,
		entry.Fingerprint,
		entry.OriginalFileName,
		entry.ProcessedAt.UTC(),
		string(entry.Status),
		entry.OutputPath,
		string(entry.Reason),
	).Scan(&fp)
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Conflict: another writer got there first.
		existing, ok, lerr := l.Lookup(ctx, entry.Fingerprint)
		if lerr != nil {
			return core.LedgerEntry{}, false, lerr
		}
		if !ok {
			return core.LedgerEntry{}, false, fmt.Errorf("ledger: entry %s conflicted but is missing", entry.Fingerprint)
		}
		return existing, false, nil
	default:
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: append: %w", err)
	}
}

func (l *PostgresLedger) List(ctx context.Context) ([]core.LedgerEntry, error) {
	rows, err := l.db.Query(ctx, listEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return out, nil
}
