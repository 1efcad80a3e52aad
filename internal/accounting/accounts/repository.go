package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and writes chart accounts of one organization at a time.
type Repository interface {
	List(ctx context.Context, organizationID int64) ([]Account, error)
	Get(ctx context.Context, organizationID, id int64) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, organization_id, code, name, type, amount, parent_id, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var typ string
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Code, &a.Name, &typ, &a.AmountMinor, &a.ParentID, &a.CreatedAt, &a.UpdatedAt)
	a.Type = AccountType(typ)
	return a, err
}

func (r *repository) List(ctx context.Context, organizationID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM chart_accounts WHERE organization_id = $1 ORDER BY code`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, organizationID, id int64) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM chart_accounts WHERE organization_id = $1 AND id = $2`, organizationID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (r *repository) Create(ctx context.Context, a Account) (Account, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO chart_accounts (organization_id, code, name, type, amount, parent_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		a.OrganizationID, a.Code, a.Name, string(a.Type), a.AmountMinor, a.ParentID, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Account{}, ErrDuplicateCode
	}
	return a, err
}
