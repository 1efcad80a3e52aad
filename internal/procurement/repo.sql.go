package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction. Writers serialize on
// the requisition row lock and the sequence row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetRequisition returns a requisition and its lines.
func (r *Repository) GetRequisition(ctx context.Context, id int64) (PurchaseRequisition, error) {
	return loadRequisition(ctx, r.pool, id, "")
}

const requisitionColumns = `id, uuid, number, organization_id, cost_center_id, project_id, requested_by, status, note,
submitted_at, approved_at, under_negotiation_at, canceled_at, created_at, updated_at`

func loadRequisition(ctx context.Context, q queryer, id int64, lock string) (PurchaseRequisition, error) {
	var pr PurchaseRequisition
	var status string
	err := q.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM purchase_requisitions WHERE id=$1`+lock, id).Scan(
		&pr.ID, &pr.UUID, &pr.Number, &pr.OrganizationID, &pr.CostCenterID, &pr.ProjectID, &pr.RequestedBy, &status, &pr.Note,
		&pr.SubmittedAt, &pr.ApprovedAt, &pr.UnderNegotiationAt, &pr.CanceledAt, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRequisition{}, ErrNotFound
	}
	if err != nil {
		return PurchaseRequisition{}, err
	}
	pr.Status = RequisitionStatus(status)

	rows, err := q.Query(ctx, `SELECT id, requisition_id, product_id, qty::text, note FROM purchase_requisition_lines WHERE requisition_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseRequisition{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line RequisitionLine
		var qty string
		if err := rows.Scan(&line.ID, &line.RequisitionID, &line.ProductID, &qty, &line.Note); err != nil {
			return PurchaseRequisition{}, err
		}
		if line.Qty, err = decimal.NewFromString(qty); err != nil {
			return PurchaseRequisition{}, fmt.Errorf("procurement: line %d qty: %w", line.ID, err)
		}
		pr.Lines = append(pr.Lines, line)
	}
	return pr, rows.Err()
}

func (r *txRepo) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO requisition_sequences (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = requisition_sequences.value + 1 RETURNING value`, name).Scan(&value)
	return value, err
}

func (r *txRepo) InsertRequisition(ctx context.Context, pr PurchaseRequisition) (PurchaseRequisition, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_requisitions (uuid, number, organization_id, cost_center_id, project_id, requested_by, status, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		pr.UUID, pr.Number, pr.OrganizationID, pr.CostCenterID, pr.ProjectID, pr.RequestedBy, string(pr.Status), pr.Note, pr.CreatedAt, pr.UpdatedAt).Scan(&pr.ID)
	if err != nil {
		return PurchaseRequisition{}, err
	}
	lines := make([]RequisitionLine, len(pr.Lines))
	for i, line := range pr.Lines {
		line.RequisitionID = pr.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO purchase_requisition_lines (requisition_id, product_id, qty, note) VALUES ($1,$2,$3,$4) RETURNING id`,
			line.RequisitionID, line.ProductID, line.Qty.String(), line.Note).Scan(&line.ID); err != nil {
			return PurchaseRequisition{}, err
		}
		lines[i] = line
	}
	pr.Lines = lines
	return pr, nil
}

func (r *txRepo) GetRequisitionForUpdate(ctx context.Context, id int64) (PurchaseRequisition, error) {
	return loadRequisition(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepo) UpdateRequisitionStatus(ctx context.Context, pr PurchaseRequisition) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_requisitions SET status=$2, submitted_at=$3, approved_at=$4, under_negotiation_at=$5, canceled_at=$6, updated_at=$7 WHERE id=$1`,
		pr.ID, string(pr.Status), pr.SubmittedAt, pr.ApprovedAt, pr.UnderNegotiationAt, pr.CanceledAt, pr.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
