package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists accounting entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ledger.Reader
	LockPair(ctx context.Context, pair ledger.Pair) error
	Insert(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
	UpdateBalance(ctx context.Context, entryID int64, balance decimal.Decimal) error
	GetEntry(ctx context.Context, entryID int64) (ledger.Entry, error)
	GetEntryForUpdate(ctx context.Context, entryID int64) (ledger.Entry, error)
	UpdateStatus(ctx context.Context, entryID int64, status ledger.EntryStatus, at time.Time) error
	ListPairs(ctx context.Context) ([]ledger.Pair, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. Writers serialize on the
// pair advisory lock, so each statement after LockPair sees the previous
// holder's committed rows.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// WithReadTx runs fn in a read-only repeatable-read snapshot.
func (r *Repository) WithReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const entryColumns = `id, uuid, chart_account_id, organization_id, branch_id, supplier_id, posting_date,
voucher_type, voucher_subtype, voucher_number, against_voucher, partner_type, partner_name, project,
description, remarks, currency, debit::text, credit::text, balance::text, is_opening_entry, is_closing_entry,
status, deleted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	var debit, credit, balance, status string
	err := row.Scan(&e.ID, &e.UUID, &e.ChartAccountID, &e.OrganizationID, &e.BranchID, &e.SupplierID, &e.PostingDate,
		&e.VoucherType, &e.VoucherSubtype, &e.VoucherNumber, &e.AgainstVoucher, &e.PartnerType, &e.PartnerName, &e.Project,
		&e.Description, &e.Remarks, &e.Currency, &debit, &credit, &balance, &e.IsOpening, &e.IsClosing,
		&status, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	if e.Debit, err = decimal.NewFromString(debit); err != nil {
		return ledger.Entry{}, fmt.Errorf("accounting: entry %d debit: %w", e.ID, err)
	}
	if e.Credit, err = decimal.NewFromString(credit); err != nil {
		return ledger.Entry{}, fmt.Errorf("accounting: entry %d credit: %w", e.ID, err)
	}
	if e.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Entry{}, fmt.Errorf("accounting: entry %d balance: %w", e.ID, err)
	}
	e.PostingDate = ledger.DateOf(e.PostingDate)
	e.Status = ledger.EntryStatus(status)
	return e, nil
}

func (r *txRepository) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
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

// scopeWhere renders the shared predicates of a scope starting at the given
// placeholder index.
func scopeWhere(scope ledger.Scope, args []any) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	if scope.ChartAccountID != nil {
		args = append(args, *scope.ChartAccountID)
		clauses = append(clauses, fmt.Sprintf("chart_account_id = $%d", len(args)))
	}
	if scope.OrganizationID != nil {
		args = append(args, *scope.OrganizationID)
		clauses = append(clauses, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	statuses := scope.Statuses()
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	args = append(args, values)
	clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	return strings.Join(clauses, " AND "), args
}

func (r *txRepository) SumSignedMovement(ctx context.Context, filter ledger.MovementFilter) (decimal.Decimal, error) {
	where, args := scopeWhere(filter.Scope, nil)
	args = append(args, ledger.DateOf(filter.Before))
	query := fmt.Sprintf(`SELECT COALESCE(SUM(debit - credit), 0)::text FROM accounting_entries WHERE %s AND posting_date < $%d`, where, len(args))
	var sum string
	if err := r.tx.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

func (r *txRepository) FetchOrdered(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	where, args := scopeWhere(filter.Scope, nil)
	if !filter.From.IsZero() {
		args = append(args, ledger.DateOf(filter.From))
		where += fmt.Sprintf(" AND posting_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, ledger.DateOf(filter.To))
		where += fmt.Sprintf(" AND posting_date <= $%d", len(args))
	}
	query := fmt.Sprintf(`SELECT %s FROM accounting_entries WHERE %s ORDER BY posting_date ASC, id ASC`, entryColumns, where)
	return r.queryEntries(ctx, query, args...)
}

func (r *txRepository) FetchOpeningEntriesAt(ctx context.Context, date time.Time, scope ledger.Scope) ([]ledger.Entry, error) {
	where, args := scopeWhere(scope, nil)
	args = append(args, ledger.DateOf(date))
	query := fmt.Sprintf(`SELECT %s FROM accounting_entries WHERE %s AND is_opening_entry AND posting_date = $%d ORDER BY id ASC`, entryColumns, where, len(args))
	return r.queryEntries(ctx, query, args...)
}

func (r *txRepository) LockPair(ctx context.Context, pair ledger.Pair) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, shared.LedgerLockKey(pair.ChartAccountID, pair.OrganizationID))
	return err
}

func (r *txRepository) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounting_entries (uuid, chart_account_id, organization_id, branch_id, supplier_id, posting_date,
voucher_type, voucher_subtype, voucher_number, against_voucher, partner_type, partner_name, project, description, remarks,
currency, debit, credit, balance, is_opening_entry, is_closing_entry, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24) RETURNING id`,
		e.UUID, e.ChartAccountID, e.OrganizationID, e.BranchID, e.SupplierID, e.PostingDate,
		e.VoucherType, e.VoucherSubtype, e.VoucherNumber, e.AgainstVoucher, e.PartnerType, e.PartnerName, e.Project, e.Description, e.Remarks,
		e.Currency, toNumeric(e.Debit), toNumeric(e.Credit), toNumeric(e.Balance), e.IsOpening, e.IsClosing, string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err := row.Scan(&e.ID); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (r *txRepository) UpdateBalance(ctx context.Context, entryID int64, balance decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounting_entries SET balance = $2 WHERE id = $1`, entryID, toNumeric(balance))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) GetEntry(ctx context.Context, entryID int64) (ledger.Entry, error) {
	return r.getEntry(ctx, `SELECT `+entryColumns+` FROM accounting_entries WHERE id = $1 AND deleted_at IS NULL`, entryID)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, entryID int64) (ledger.Entry, error) {
	return r.getEntry(ctx, `SELECT `+entryColumns+` FROM accounting_entries WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, entryID)
}

func (r *txRepository) getEntry(ctx context.Context, query string, entryID int64) (ledger.Entry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, query, entryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, entryID int64, status ledger.EntryStatus, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounting_entries SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`, entryID, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ListPairs(ctx context.Context) ([]ledger.Pair, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT chart_account_id, organization_id FROM accounting_entries
WHERE deleted_at IS NULL AND chart_account_id IS NOT NULL AND organization_id IS NOT NULL
ORDER BY organization_id, chart_account_id`)
	if err != nil {
		return nil, err
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

func toNumeric(v decimal.Decimal) string {
	return v.StringFixed(ledger.MinorScale)
}
