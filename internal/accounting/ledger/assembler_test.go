package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type sliceReader struct {
	entries []Entry
	err     error
	// scrambled returns FetchOrdered results in reverse to exercise the
	// ordering assertion.
	scrambled bool
}

func (r *sliceReader) match(e Entry, scope Scope) bool {
	if e.DeletedAt != nil {
		return false
	}
	if scope.ChartAccountID != nil && (e.ChartAccountID == nil || *e.ChartAccountID != *scope.ChartAccountID) {
		return false
	}
	if scope.OrganizationID != nil && (e.OrganizationID == nil || *e.OrganizationID != *scope.OrganizationID) {
		return false
	}
	for _, status := range scope.Statuses() {
		if e.Status == status {
			return true
		}
	}
	return false
}

func (r *sliceReader) SumSignedMovement(_ context.Context, f MovementFilter) (decimal.Decimal, error) {
	if r.err != nil {
		return decimal.Zero, r.err
	}
	sum := decimal.Zero
	for _, e := range r.entries {
		if r.match(e, f.Scope) && e.PostingDate.Before(f.Before) {
			sum = sum.Add(e.Movement())
		}
	}
	return sum, nil
}

func (r *sliceReader) FetchOrdered(_ context.Context, f EntryFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if !r.match(e, f.Scope) {
			continue
		}
		if !f.From.IsZero() && e.PostingDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.PostingDate.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if r.scrambled {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (r *sliceReader) FetchOpeningEntriesAt(_ context.Context, date time.Time, scope Scope) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if r.match(e, scope) && e.IsOpening && e.PostingDate.Equal(date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func ptr(v int64) *int64 { return &v }

func entry(id int64, date time.Time, debit, credit string) Entry {
	return Entry{
		ID:             id,
		ChartAccountID: ptr(10),
		OrganizationID: ptr(1),
		PostingDate:    date,
		Currency:       "BRL",
		Debit:          dec(debit),
		Credit:         dec(credit),
		Balance:        decimal.Zero,
		Status:         StatusActive,
	}
}

func kinds(rows []Row) []RowKind {
	out := make([]RowKind, len(rows))
	for i, row := range rows {
		out[i] = row.Kind
	}
	return out
}

func TestBuildScenarioOpeningThenDebitAndCredit(t *testing.T) {
	reader := &sliceReader{entries: []Entry{
		entry(1, day(2026, 1, 15), "1000", "0"),
		entry(2, day(2026, 2, 1), "500", "0"),
		entry(3, day(2026, 2, 2), "0", "200"),
	}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{
		StartDate:               day(2026, 2, 1),
		EndDate:                 day(2026, 2, 28),
		ChartAccountID:          ptr(10),
		OrganizationID:          ptr(1),
		IncludeOpeningStructure: true,
	})
	require.NoError(t, err)
	require.Equal(t, []RowKind{RowOpeningHeader, RowPreviousBalance, RowEntry, RowEntry, RowTotal, RowClosing}, kinds(rows))

	require.Equal(t, VoucherOpeningHeader, rows[0].VoucherType)
	require.True(t, rows[1].Balance.Equal(dec("1000")))
	require.True(t, rows[1].Debit.Equal(dec("1000")))
	require.True(t, rows[2].Balance.Equal(dec("1500")))
	require.True(t, rows[3].Balance.Equal(dec("1300")))

	total := rows[4]
	require.True(t, total.Debit.Equal(dec("500")))
	require.True(t, total.Credit.Equal(dec("200")))
	require.True(t, total.Balance.Equal(dec("300")))
	require.False(t, total.IsClosing)

	closing := rows[5]
	require.True(t, closing.IsClosing)
	require.True(t, closing.Debit.Equal(dec("500")))
	require.True(t, closing.Credit.Equal(dec("200")))

	for _, row := range []Row{rows[0], rows[1], total, closing} {
		require.Nil(t, row.ChartAccountID)
		require.True(t, row.IsSystemGenerated)
		require.Equal(t, "BRL", row.Currency)
	}
}

func TestBuildEmptyPeriodYieldsZeroTotalsAndClosing(t *testing.T) {
	rows, err := NewAssembler("BRL").Build(context.Background(), &sliceReader{}, Filters{
		StartDate: day(2026, 3, 1),
		EndDate:   day(2026, 3, 31),
	})
	require.NoError(t, err)
	require.Equal(t, []RowKind{RowTotal, RowClosing}, kinds(rows))
	for _, row := range rows {
		require.True(t, row.Debit.IsZero())
		require.True(t, row.Credit.IsZero())
		require.True(t, row.Balance.IsZero())
	}
	require.True(t, rows[1].IsClosing)
}

func TestBuildOmitsPreviousBalanceWhenOpeningIsZero(t *testing.T) {
	reader := &sliceReader{entries: []Entry{
		entry(1, day(2026, 1, 10), "100", "0"),
		entry(2, day(2026, 1, 11), "0", "100"),
		entry(3, day(2026, 2, 5), "40", "0"),
	}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{
		StartDate:               day(2026, 2, 1),
		EndDate:                 day(2026, 2, 28),
		IncludeOpeningStructure: true,
	})
	require.NoError(t, err)
	require.Equal(t, []RowKind{RowOpeningHeader, RowEntry, RowTotal, RowClosing}, kinds(rows))
	require.True(t, rows[1].Balance.Equal(dec("40")))
}

func TestBuildNegativeOpeningGoesToCredit(t *testing.T) {
	reader := &sliceReader{entries: []Entry{entry(1, day(2026, 1, 10), "0", "250")}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{
		StartDate:               day(2026, 2, 1),
		EndDate:                 day(2026, 2, 28),
		IncludeOpeningStructure: true,
	})
	require.NoError(t, err)
	prev := rows[1]
	require.Equal(t, RowPreviousBalance, prev.Kind)
	require.True(t, prev.Debit.IsZero())
	require.True(t, prev.Credit.Equal(dec("250")))
	require.True(t, prev.Balance.Equal(dec("-250")))
}

func TestBuildWithoutOpeningStructureStillSeedsBalance(t *testing.T) {
	reader := &sliceReader{entries: []Entry{
		entry(1, day(2026, 1, 15), "1000", "0"),
		entry(2, day(2026, 2, 1), "500", "0"),
	}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{
		StartDate: day(2026, 2, 1),
		EndDate:   day(2026, 2, 28),
	})
	require.NoError(t, err)
	require.Equal(t, []RowKind{RowEntry, RowTotal, RowClosing}, kinds(rows))
	require.True(t, rows[0].Balance.Equal(dec("1500")))
}

func TestBuildOpeningEntriesShownOnceAndSeedTheFold(t *testing.T) {
	opening := entry(7, day(2026, 2, 1), "300", "0")
	opening.IsOpening = true
	opening.Balance = dec("300")
	earlierOpening := entry(5, day(2026, 2, 1), "20", "0")
	earlierOpening.IsOpening = true
	reader := &sliceReader{entries: []Entry{
		entry(1, day(2026, 1, 15), "1000", "0"),
		opening,
		earlierOpening,
		entry(8, day(2026, 2, 1), "0", "100"),
	}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{
		StartDate:               day(2026, 2, 1),
		EndDate:                 day(2026, 2, 28),
		IncludeOpeningStructure: true,
	})
	require.NoError(t, err)
	require.Equal(t, []RowKind{RowOpeningHeader, RowPreviousBalance, RowOpeningEntry, RowOpeningEntry, RowEntry, RowTotal, RowClosing}, kinds(rows))

	// id order, stored balance passed through
	require.Equal(t, int64(5), rows[2].ID)
	require.Equal(t, int64(7), rows[3].ID)
	require.True(t, rows[3].Balance.Equal(dec("300")))

	// 1000 + 20 + 300 - 100
	require.True(t, rows[4].Balance.Equal(dec("1220")))
	require.True(t, rows[5].Debit.IsZero())
	require.True(t, rows[5].Credit.Equal(dec("100")))
}

func TestBuildOpeningEntriesAreRegularWhenStructureHidden(t *testing.T) {
	opening := entry(2, day(2026, 2, 1), "300", "0")
	opening.IsOpening = true
	reader := &sliceReader{entries: []Entry{opening}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{
		StartDate: day(2026, 2, 1),
		EndDate:   day(2026, 2, 28),
	})
	require.NoError(t, err)
	require.Equal(t, []RowKind{RowEntry, RowTotal, RowClosing}, kinds(rows))
	require.True(t, rows[1].Debit.Equal(dec("300")))
}

func TestBuildCancelledEntriesFollowFlag(t *testing.T) {
	cancelled := entry(2, day(2026, 2, 3), "50", "0")
	cancelled.Status = StatusCancelled
	draft := entry(3, day(2026, 2, 4), "70", "0")
	draft.Status = StatusDraft
	reader := &sliceReader{entries: []Entry{entry(1, day(2026, 2, 2), "10", "0"), cancelled, draft}}

	f := Filters{StartDate: day(2026, 2, 1), EndDate: day(2026, 2, 28)}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, f)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	f.IncludeCancelled = true
	rows, err = NewAssembler("BRL").Build(context.Background(), reader, f)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.True(t, rows[1].Balance.Equal(dec("60")))
}

func TestBuildRowsStayChronological(t *testing.T) {
	reader := &sliceReader{entries: []Entry{
		entry(9, day(2026, 2, 3), "1", "0"),
		entry(4, day(2026, 2, 3), "2", "0"),
		entry(6, day(2026, 2, 2), "3", "0"),
		entry(1, day(2026, 2, 20), "0", "4"),
	}}
	rows, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{StartDate: day(2026, 2, 1), EndDate: day(2026, 2, 28)})
	require.NoError(t, err)
	var regular []Entry
	for _, row := range rows {
		if row.Kind == RowEntry {
			regular = append(regular, row.Entry)
		}
	}
	require.NoError(t, CheckOrdered(regular))
	require.Equal(t, []int64{6, 4, 9, 1}, []int64{regular[0].ID, regular[1].ID, regular[2].ID, regular[3].ID})
}

func TestBuildPropagatesUnorderedRepository(t *testing.T) {
	reader := &sliceReader{scrambled: true, entries: []Entry{
		entry(1, day(2026, 2, 2), "1", "0"),
		entry(2, day(2026, 2, 3), "1", "0"),
	}}
	_, err := NewAssembler("BRL").Build(context.Background(), reader, Filters{StartDate: day(2026, 2, 1), EndDate: day(2026, 2, 28)})
	require.ErrorIs(t, err, ErrUnorderedEntries)
}

func TestBuildPropagatesRepositoryFailure(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewAssembler("BRL").Build(context.Background(), &sliceReader{err: boom}, Filters{StartDate: day(2026, 2, 1), EndDate: day(2026, 2, 28)})
	require.ErrorIs(t, err, boom)
}

func TestBuildTruncatesFilterDates(t *testing.T) {
	reader := &sliceReader{entries: []Entry{entry(1, day(2026, 2, 28), "5", "0")}}
	rows, err := NewAssembler("USD").Build(context.Background(), reader, Filters{
		StartDate: time.Date(2026, 2, 1, 13, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 28, 8, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "USD", rows[2].Currency)
	require.Equal(t, day(2026, 2, 28), rows[2].PostingDate)
}
