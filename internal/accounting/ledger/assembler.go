package ledger

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// RowKind tells ledger consumers where a row came from.
type RowKind string

const (
	RowOpeningHeader   RowKind = "opening_header"
	RowPreviousBalance RowKind = "previous_balance"
	RowOpeningEntry    RowKind = "opening_entry"
	RowEntry           RowKind = "entry"
	RowTotal           RowKind = "total"
	RowClosing         RowKind = "closing"
)

// Row is one line of a ledger view.
type Row struct {
	Entry
	Kind RowKind `json:"kind"`
}

// Assembler builds ledger views from a Reader.
type Assembler struct {
	currency string
}

// NewAssembler returns an assembler that labels synthesized rows with
// defaultCurrency unless the filters name one.
func NewAssembler(defaultCurrency string) *Assembler {
	return &Assembler{currency: defaultCurrency}
}

// Build returns the ledger for f in display order: opening structure (when
// requested), regular entries with running balances, totals and closing.
func (a *Assembler) Build(ctx context.Context, r Reader, f Filters) ([]Row, error) {
	f = f.Normalized()
	opening, err := a.openingBalance(ctx, r, f)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, 8)
	seed := opening
	var shown map[int64]struct{}
	if f.IncludeOpeningStructure {
		structure, openingEntries, err := a.openingStructure(ctx, r, f, opening)
		if err != nil {
			return nil, err
		}
		rows = append(rows, structure...)
		shown = make(map[int64]struct{}, len(openingEntries))
		for _, entry := range openingEntries {
			shown[entry.ID] = struct{}{}
			seed = seed.Add(entry.Movement())
		}
	}

	regular, err := a.regularRows(ctx, r, f, seed, shown)
	if err != nil {
		return nil, err
	}
	rows = append(rows, regular...)

	entries := make([]Entry, len(regular))
	for i, row := range regular {
		entries[i] = row.Entry
	}
	debit, credit := Totals(entries)
	rows = append(rows, a.totalRow(f, debit, credit), a.closingRow(f, debit, credit))
	return rows, nil
}

// openingBalance sums signed movements strictly before the start date.
func (a *Assembler) openingBalance(ctx context.Context, r Reader, f Filters) (decimal.Decimal, error) {
	return r.SumSignedMovement(ctx, MovementFilter{Scope: f.Scope(), Before: f.StartDate})
}

// openingStructure emits the header, the previous-balance row when the
// opening balance is non-zero, and opening-flagged entries dated on the start
// date. The opening entries are returned separately so the caller can keep
// them out of the regular fold.
func (a *Assembler) openingStructure(ctx context.Context, r Reader, f Filters, opening decimal.Decimal) ([]Row, []Entry, error) {
	rows := []Row{{Entry: a.pseudoEntry(f, VoucherOpeningHeader, f.StartDate), Kind: RowOpeningHeader}}

	if !opening.IsZero() {
		prev := a.pseudoEntry(f, VoucherPreviousBalance, f.StartDate)
		if opening.IsPositive() {
			prev.Debit = opening
		} else {
			prev.Credit = opening.Neg()
		}
		prev.Balance = opening
		rows = append(rows, Row{Entry: prev, Kind: RowPreviousBalance})
	}

	openingEntries, err := r.FetchOpeningEntriesAt(ctx, f.StartDate, f.Scope())
	if err != nil {
		return nil, nil, err
	}
	openingEntries = slices.Clone(openingEntries)
	slices.SortStableFunc(openingEntries, func(x, y Entry) int { return cmp.Compare(x.ID, y.ID) })
	for _, entry := range openingEntries {
		rows = append(rows, Row{Entry: entry, Kind: RowOpeningEntry})
	}
	return rows, openingEntries, nil
}

// regularRows folds the in-period entries, minus those already shown in the
// opening structure, starting from seed.
func (a *Assembler) regularRows(ctx context.Context, r Reader, f Filters, seed decimal.Decimal, shown map[int64]struct{}) ([]Row, error) {
	fetched, err := r.FetchOrdered(ctx, EntryFilter{Scope: f.Scope(), From: f.StartDate, To: f.EndDate})
	if err != nil {
		return nil, err
	}
	entries := fetched
	if len(shown) > 0 {
		entries = make([]Entry, 0, len(fetched))
		for _, entry := range fetched {
			if _, skip := shown[entry.ID]; skip {
				continue
			}
			entries = append(entries, entry)
		}
	}
	folded, _, err := Accumulate(seed, entries)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(folded))
	for i, entry := range folded {
		rows[i] = Row{Entry: entry, Kind: RowEntry}
	}
	return rows, nil
}

func (a *Assembler) totalRow(f Filters, debit, credit decimal.Decimal) Row {
	total := a.pseudoEntry(f, VoucherTotal, f.EndDate)
	total.Debit = debit
	total.Credit = credit
	total.Balance = debit.Sub(credit)
	return Row{Entry: total, Kind: RowTotal}
}

func (a *Assembler) closingRow(f Filters, debit, credit decimal.Decimal) Row {
	closing := a.pseudoEntry(f, VoucherClosing, f.EndDate)
	closing.Debit = debit
	closing.Credit = credit
	closing.Balance = debit.Sub(credit)
	closing.IsClosing = true
	return Row{Entry: closing, Kind: RowClosing}
}

func (a *Assembler) pseudoEntry(f Filters, voucherType string, date time.Time) Entry {
	currency := f.Currency
	if currency == "" {
		currency = a.currency
	}
	return Entry{
		OrganizationID:    f.OrganizationID,
		PostingDate:       date,
		VoucherType:       voucherType,
		Currency:          currency,
		Debit:             decimal.Zero,
		Credit:            decimal.Zero,
		Balance:           decimal.Zero,
		IsSystemGenerated: true,
		Status:            StatusActive,
	}
}
