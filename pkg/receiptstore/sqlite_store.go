// Package receiptstore gives a receipt.Chain an optional durable,
// append-only backing store. Persistence itself is an external
// collaborator (spec §1 non-goals); this package only adapts the
// in-memory chain invariants onto a SQL table so a process restart can
// rebuild a Chain from what was pushed before it died.
package receiptstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
)

// SQLiteStore persists receipts in push order to a single "receipts"
// table, keyed by run_id with a monotonic sequence column so List can
// reconstruct push order without relying on a timestamp.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) a sqlite database at path and ensures the
// receipts table exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "receiptstore: open failed", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an already-open *sql.DB, letting callers inject
// a sqlmock.Sqlmock-backed db in tests.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS receipts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		receipt_sha256 TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		body JSON NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return bperr.Wrap(bperr.CodeInternal, "receiptstore: migrate failed", err)
	}
	return nil
}

// Push persists r. r must already be hashed; Push does not verify the
// hash or enforce ordering — callers that need those invariants push
// through a receipt.Chain first and persist on success.
func (s *SQLiteStore) Push(ctx context.Context, r receipt.Receipt) error {
	if r.ReceiptSHA256 == nil {
		return bperr.New(bperr.CodeReceiptChainBroken, "receiptstore: cannot persist an unhashed receipt")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return bperr.Wrap(bperr.CodeInternal, "receiptstore: marshal failed", err)
	}

	const query = `INSERT INTO receipts (run_id, receipt_sha256, started_at, finished_at, body) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		r.Meta.RunID, *r.ReceiptSHA256,
		r.Meta.StartedAt.UTC().Format(time.RFC3339Nano),
		r.Meta.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(body),
	)
	if err != nil {
		return bperr.Wrap(bperr.CodeInternal, "receiptstore: insert failed", err)
	}
	return nil
}

// List returns up to limit receipts in push order, oldest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]receipt.Receipt, error) {
	const query = `SELECT body FROM receipts ORDER BY seq ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "receiptstore: query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var out []receipt.Receipt
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, bperr.Wrap(bperr.CodeInternal, "receiptstore: scan failed", err)
		}
		var r receipt.Receipt
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, bperr.Wrap(bperr.CodeInternal, "receiptstore: unmarshal failed", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "receiptstore: row iteration failed", err)
	}
	return out, nil
}

// LastForRun returns the most recently pushed receipt for runID, or
// (Receipt{}, false, nil) if none exists.
func (s *SQLiteStore) LastForRun(ctx context.Context, runID string) (receipt.Receipt, bool, error) {
	const query = `SELECT body FROM receipts WHERE run_id = ? ORDER BY seq DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, runID)
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return receipt.Receipt{}, false, nil
		}
		return receipt.Receipt{}, false, bperr.Wrap(bperr.CodeInternal, "receiptstore: scan failed", err)
	}
	var r receipt.Receipt
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return receipt.Receipt{}, false, fmt.Errorf("receiptstore: unmarshal failed: %w", err)
	}
	return r, true, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
