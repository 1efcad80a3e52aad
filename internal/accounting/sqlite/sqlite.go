// Package sqlite stores accounting entries in a single SQLite file for
// development and single-node deployments.
//
// Amounts are kept as decimal strings and summed in Go, since SQLite has no
// exact numeric type. Posting dates are ISO dates so text comparison matches
// calendar order. Writers are serialized by a mutex over a single connection,
// which also provides the per-pair exclusive scope.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// Store implements accounting.RepositoryPort on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path and migrates its schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounting_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		chart_account_id INTEGER,
		organization_id INTEGER,
		branch_id INTEGER,
		supplier_id INTEGER,
		posting_date TEXT NOT NULL,
		voucher_type TEXT NOT NULL DEFAULT '',
		voucher_subtype TEXT NOT NULL DEFAULT '',
		voucher_number TEXT NOT NULL DEFAULT '',
		against_voucher TEXT NOT NULL DEFAULT '',
		partner_type TEXT NOT NULL DEFAULT '',
		partner_name TEXT NOT NULL DEFAULT '',
		project TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		balance TEXT NOT NULL,
		is_opening_entry BOOLEAN NOT NULL DEFAULT 0,
		is_closing_entry BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('draft', 'active', 'cancelled')),
		deleted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounting_entries_pair_date
		ON accounting_entries(organization_id, chart_account_id, posting_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn in a write transaction; any error rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, nil, fn)
}

// WithReadTx runs fn in a read-only transaction.
func (s *Store) WithReadTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(context.Context, accounting.TxRepository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

const entryColumns = `id, uuid, chart_account_id, organization_id, branch_id, supplier_id, posting_date,
	voucher_type, voucher_subtype, voucher_number, against_voucher, partner_type, partner_name, project,
	description, remarks, currency, debit, credit, balance, is_opening_entry, is_closing_entry,
	status, deleted_at, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (ledger.Entry, error) {
	var (
		e                                       ledger.Entry
		id                                      string
		chartAccountID, orgID, branch, supplier sql.NullInt64
		postingDate, debit, credit, balance     string
		status, createdAt, updatedAt            string
		deletedAt                               sql.NullString
	)
	err := row.Scan(&e.ID, &id, &chartAccountID, &orgID, &branch, &supplier, &postingDate,
		&e.VoucherType, &e.VoucherSubtype, &e.VoucherNumber, &e.AgainstVoucher, &e.PartnerType, &e.PartnerName, &e.Project,
		&e.Description, &e.Remarks, &e.Currency, &debit, &credit, &balance, &e.IsOpening, &e.IsClosing,
		&status, &deletedAt, &createdAt, &updatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	if e.UUID, err = uuid.Parse(id); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d uuid: %w", e.ID, err)
	}
	e.ChartAccountID = nullableID(chartAccountID)
	e.OrganizationID = nullableID(orgID)
	e.BranchID = nullableID(branch)
	e.SupplierID = nullableID(supplier)
	if e.PostingDate, err = time.Parse(time.DateOnly, postingDate); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d posting date: %w", e.ID, err)
	}
	if e.Debit, err = decimal.NewFromString(debit); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d debit: %w", e.ID, err)
	}
	if e.Credit, err = decimal.NewFromString(credit); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d credit: %w", e.ID, err)
	}
	if e.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d balance: %w", e.ID, err)
	}
	e.Status = ledger.EntryStatus(status)
	if deletedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("entry %d deleted_at: %w", e.ID, err)
		}
		e.DeletedAt = &at
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d created_at: %w", e.ID, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d updated_at: %w", e.ID, err)
	}
	return e, nil
}

func (ts *txStore) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := ts.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scopeWhere(scope ledger.Scope) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	if scope.ChartAccountID != nil {
		clauses = append(clauses, "chart_account_id = ?")
		args = append(args, *scope.ChartAccountID)
	}
	if scope.OrganizationID != nil {
		clauses = append(clauses, "organization_id = ?")
		args = append(args, *scope.OrganizationID)
	}
	statuses := scope.Statuses()
	marks := make([]string, len(statuses))
	for i, status := range statuses {
		marks[i] = "?"
		args = append(args, string(status))
	}
	clauses = append(clauses, "status IN ("+strings.Join(marks, ", ")+")")
	return strings.Join(clauses, " AND "), args
}

func (ts *txStore) SumSignedMovement(ctx context.Context, filter ledger.MovementFilter) (decimal.Decimal, error) {
	where, args := scopeWhere(filter.Scope)
	args = append(args, dateText(filter.Before))
	rows, err := ts.tx.QueryContext(ctx, `SELECT debit, credit FROM accounting_entries WHERE `+where+` AND posting_date < ?`, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum movement: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var debit, credit string
		if err := rows.Scan(&debit, &credit); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(debit)
		if err != nil {
			return decimal.Zero, err
		}
		c, err := decimal.NewFromString(credit)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(d).Sub(c)
	}
	return sum, rows.Err()
}

func (ts *txStore) FetchOrdered(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	where, args := scopeWhere(filter.Scope)
	if !filter.From.IsZero() {
		where += " AND posting_date >= ?"
		args = append(args, dateText(filter.From))
	}
	if !filter.To.IsZero() {
		where += " AND posting_date <= ?"
		args = append(args, dateText(filter.To))
	}
	return ts.queryEntries(ctx, `SELECT `+entryColumns+` FROM accounting_entries WHERE `+where+` ORDER BY posting_date ASC, id ASC`, args...)
}

func (ts *txStore) FetchOpeningEntriesAt(ctx context.Context, date time.Time, scope ledger.Scope) ([]ledger.Entry, error) {
	where, args := scopeWhere(scope)
	args = append(args, dateText(date))
	return ts.queryEntries(ctx, `SELECT `+entryColumns+` FROM accounting_entries WHERE `+where+` AND is_opening_entry = 1 AND posting_date = ? ORDER BY id ASC`, args...)
}

// LockPair is a no-op: the store mutex already serializes writers.
func (ts *txStore) LockPair(context.Context, ledger.Pair) error {
	return nil
}

func (ts *txStore) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	res, err := ts.tx.ExecContext(ctx, `INSERT INTO accounting_entries (uuid, chart_account_id, organization_id, branch_id, supplier_id, posting_date,
		voucher_type, voucher_subtype, voucher_number, against_voucher, partner_type, partner_name, project, description, remarks,
		currency, debit, credit, balance, is_opening_entry, is_closing_entry, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UUID.String(), e.ChartAccountID, e.OrganizationID, e.BranchID, e.SupplierID, dateText(e.PostingDate),
		e.VoucherType, e.VoucherSubtype, e.VoucherNumber, e.AgainstVoucher, e.PartnerType, e.PartnerName, e.Project, e.Description, e.Remarks,
		e.Currency, amountText(e.Debit), amountText(e.Credit), amountText(e.Balance), e.IsOpening, e.IsClosing, string(e.Status),
		timeText(e.CreatedAt), timeText(e.UpdatedAt))
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (ts *txStore) UpdateBalance(ctx context.Context, entryID int64, balance decimal.Decimal) error {
	res, err := ts.tx.ExecContext(ctx, `UPDATE accounting_entries SET balance = ? WHERE id = ?`, amountText(balance), entryID)
	return affected(res, err)
}

func (ts *txStore) GetEntry(ctx context.Context, entryID int64) (ledger.Entry, error) {
	e, err := scanEntry(ts.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM accounting_entries WHERE id = ? AND deleted_at IS NULL`, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, accounting.ErrEntryNotFound
	}
	return e, err
}

// GetEntryForUpdate equals GetEntry: the write transaction already holds the
// store mutex.
func (ts *txStore) GetEntryForUpdate(ctx context.Context, entryID int64) (ledger.Entry, error) {
	return ts.GetEntry(ctx, entryID)
}

func (ts *txStore) UpdateStatus(ctx context.Context, entryID int64, status ledger.EntryStatus, at time.Time) error {
	res, err := ts.tx.ExecContext(ctx, `UPDATE accounting_entries SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		string(status), timeText(at), entryID)
	return affected(res, err)
}

func (ts *txStore) ListPairs(ctx context.Context) ([]ledger.Pair, error) {
	rows, err := ts.tx.QueryContext(ctx, `SELECT DISTINCT chart_account_id, organization_id FROM accounting_entries
		WHERE deleted_at IS NULL AND chart_account_id IS NOT NULL AND organization_id IS NOT NULL
		ORDER BY organization_id, chart_account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []ledger.Pair
	for rows.Next() {
		var p ledger.Pair
		if err := rows.Scan(&p.ChartAccountID, &p.OrganizationID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return accounting.ErrEntryNotFound
	}
	return nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func dateText(t time.Time) string {
	return ledger.DateOf(t).Format(time.DateOnly)
}

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func amountText(v decimal.Decimal) string {
	return v.StringFixed(ledger.MinorScale)
}
