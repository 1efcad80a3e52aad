package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(d int) time.Time {
	return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC)
}

func entryInput(date time.Time, debit, credit string) accounting.RecordEntryInput {
	return accounting.RecordEntryInput{
		ChartAccountID: 3,
		OrganizationID: 9,
		PostingDate:    date,
		VoucherType:    "Purchase Invoice",
		Currency:       "BRL",
		Debit:          decimal.RequireFromString(debit),
		Credit:         decimal.RequireFromString(credit),
	}
}

func TestStoreBacksLedgerService(t *testing.T) {
	ctx := context.Background()
	svc := accounting.NewService(newStore(t), nil, accounting.ServiceConfig{})

	_, err := svc.RecordEntry(ctx, entryInput(day(2), "500", "0"))
	require.NoError(t, err)
	_, err = svc.RecordEntry(ctx, entryInput(day(3), "0", "200"))
	require.NoError(t, err)
	early, err := svc.RecordEntry(ctx, entryInput(day(1), "1000", "0"))
	require.NoError(t, err)
	require.True(t, early.Balance.Equal(decimal.NewFromInt(1000)))

	accountID, orgID := int64(3), int64(9)
	rows, err := svc.BuildLedger(ctx, ledger.Filters{
		StartDate:               day(2),
		EndDate:                 day(28),
		ChartAccountID:          &accountID,
		OrganizationID:          &orgID,
		IncludeOpeningStructure: true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 6)
	require.True(t, rows[1].Debit.Equal(decimal.NewFromInt(1000)))
	require.True(t, rows[2].Balance.Equal(decimal.NewFromInt(1500)))
	require.True(t, rows[3].Balance.Equal(decimal.NewFromInt(1300)))

	pair := ledger.Pair{ChartAccountID: 3, OrganizationID: 9}
	report, err := svc.Verify(ctx, pair)
	require.NoError(t, err)
	require.True(t, report.Consistent())
	require.Equal(t, 3, report.Checked)

	again, err := svc.Recalculate(ctx, pair)
	require.NoError(t, err)
	require.Zero(t, again.Updated)

	pairs, err := svc.Pairs(ctx)
	require.NoError(t, err)
	require.Equal(t, []ledger.Pair{pair}, pairs)
}

func TestStoreRoundTripsEntryFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	branch := int64(4)
	entry, err := ledger.NewEntry(ledger.EntryParams{
		ChartAccountID: 3,
		OrganizationID: 9,
		BranchID:       &branch,
		PostingDate:    day(5),
		VoucherType:    "Journal Entry",
		PartnerName:    "ACME",
		Currency:       "usd",
		Debit:          decimal.RequireFromString("12.345"),
		Credit:         decimal.Zero,
		IsOpening:      true,
	}, time.Date(2026, 2, 5, 13, 4, 5, 600, time.UTC))
	require.NoError(t, err)

	var stored ledger.Entry
	err = store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		inserted, err := tx.Insert(ctx, entry)
		if err != nil {
			return err
		}
		stored, err = tx.GetEntry(ctx, inserted.ID)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, entry.UUID, stored.UUID)
	require.Equal(t, &branch, stored.BranchID)
	require.Nil(t, stored.SupplierID)
	require.Equal(t, day(5), stored.PostingDate)
	require.Equal(t, "USD", stored.Currency)
	require.True(t, stored.Debit.Equal(decimal.RequireFromString("12.35")))
	require.True(t, stored.IsOpening)
	require.Equal(t, ledger.StatusActive, stored.Status)
	require.True(t, entry.CreatedAt.Equal(stored.CreatedAt))

	err = store.WithReadTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		opening, err := tx.FetchOpeningEntriesAt(ctx, day(5), ledger.ScopeOf(ledger.Pair{ChartAccountID: 3, OrganizationID: 9}))
		require.NoError(t, err)
		require.Len(t, opening, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreRollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	entry, err := ledger.NewEntry(ledger.EntryParams{ChartAccountID: 3, OrganizationID: 9, PostingDate: day(1), Currency: "BRL", Debit: decimal.NewFromInt(1), Credit: decimal.Zero}, day(1))
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		if _, err := tx.Insert(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithReadTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		pairs, err := tx.ListPairs(ctx)
		require.NoError(t, err)
		require.Empty(t, pairs)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreStatusFilterAndMissingRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	svc := accounting.NewService(store, nil, accounting.ServiceConfig{})

	kept, err := svc.RecordEntry(ctx, entryInput(day(1), "10", "0"))
	require.NoError(t, err)
	dropped, err := svc.RecordEntry(ctx, entryInput(day(2), "5", "0"))
	require.NoError(t, err)
	_, err = svc.ChangeEntryStatus(ctx, accounting.ChangeStatusInput{EntryID: dropped.ID, To: ledger.StatusCancelled})
	require.NoError(t, err)

	scope := ledger.ScopeOf(ledger.Pair{ChartAccountID: 3, OrganizationID: 9})
	err = store.WithReadTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		active, err := tx.FetchOrdered(ctx, ledger.EntryFilter{Scope: scope})
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, kept.ID, active[0].ID)

		scope.IncludeCancelled = true
		sum, err := tx.SumSignedMovement(ctx, ledger.MovementFilter{Scope: scope, Before: day(3)})
		require.NoError(t, err)
		require.True(t, sum.Equal(decimal.NewFromInt(15)))

		_, err = tx.GetEntry(ctx, 999)
		require.ErrorIs(t, err, accounting.ErrEntryNotFound)
		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		return tx.UpdateBalance(ctx, 999, decimal.Zero)
	})
	require.ErrorIs(t, err, accounting.ErrEntryNotFound)
}
