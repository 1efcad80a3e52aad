package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnorderedEntries is matched by OrderingError.
var ErrUnorderedEntries = errors.New("ledger: entries not ordered by posting date and id")

// OrderingError points at the first entry that breaks (posting date, id) order.
type OrderingError struct {
	Index      int
	PreviousID int64
	CurrentID  int64
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("ledger: entry %d at position %d sorts before entry %d", e.CurrentID, e.Index, e.PreviousID)
}

func (e *OrderingError) Unwrap() error {
	return ErrUnorderedEntries
}

// CheckOrdered verifies entries are sorted by (posting date, id).
func CheckOrdered(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Before(entries[i-1]) {
			return &OrderingError{Index: i, PreviousID: entries[i-1].ID, CurrentID: entries[i].ID}
		}
	}
	return nil
}

// Accumulate folds signed movements over entries starting at opening. It
// returns copies of the entries with Balance set to the running total and the
// final balance. The input is never mutated.
func Accumulate(opening decimal.Decimal, entries []Entry) ([]Entry, decimal.Decimal, error) {
	if err := CheckOrdered(entries); err != nil {
		return nil, opening, err
	}
	out := make([]Entry, len(entries))
	running := opening
	for i, entry := range entries {
		running = running.Add(entry.Movement())
		entry.Balance = running
		out[i] = entry
	}
	return out, running, nil
}

// Totals sums debit and credit over entries.
func Totals(entries []Entry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, entry := range entries {
		debit = debit.Add(entry.Debit)
		credit = credit.Add(entry.Credit)
	}
	return debit, credit
}
