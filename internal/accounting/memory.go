package accounting

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// MemoryRepository keeps entries in process memory. Transactions work on a
// copy of the state that replaces the original only when fn succeeds, so a
// failed transaction leaves nothing behind. Writers are serialized by a
// single mutex, which also stands in for the pair lock.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[int64]ledger.Entry
	nextID  int64
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[int64]ledger.Entry)}
}

// WithTx runs fn against a private copy and commits it on success.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{entries: maps.Clone(m.entries), nextID: m.nextID}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries, m.nextID = tx.entries, tx.nextID
	return nil
}

// WithReadTx runs fn against a read-only view.
func (m *MemoryRepository) WithReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, &memoryTx{entries: m.entries, nextID: m.nextID, readOnly: true})
}

// Seed stores entries as-is, assigning ids to those without one. Used to load
// fixtures and historical data whose balances are recalculated afterwards.
func (m *MemoryRepository) Seed(entries ...ledger.Entry) []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Entry, len(entries))
	for i, e := range entries {
		if e.ID == 0 {
			m.nextID++
			e.ID = m.nextID
		} else if e.ID > m.nextID {
			m.nextID = e.ID
		}
		m.entries[e.ID] = e
		out[i] = e
	}
	return out
}

// Entry returns a stored entry by id, including soft-deleted ones.
func (m *MemoryRepository) Entry(id int64) (ledger.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

var errReadOnlyTx = errors.New("accounting: write in read-only transaction")

type memoryTx struct {
	entries  map[int64]ledger.Entry
	nextID   int64
	readOnly bool
}

func (tx *memoryTx) matches(e ledger.Entry, scope ledger.Scope) bool {
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

func (tx *memoryTx) sorted(keep func(ledger.Entry) bool) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range tx.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (tx *memoryTx) SumSignedMovement(_ context.Context, filter ledger.MovementFilter) (decimal.Decimal, error) {
	before := ledger.DateOf(filter.Before)
	sum := decimal.Zero
	for _, e := range tx.entries {
		if tx.matches(e, filter.Scope) && e.PostingDate.Before(before) {
			sum = sum.Add(e.Movement())
		}
	}
	return sum, nil
}

func (tx *memoryTx) FetchOrdered(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	return tx.sorted(func(e ledger.Entry) bool {
		if !tx.matches(e, filter.Scope) {
			return false
		}
		if !filter.From.IsZero() && e.PostingDate.Before(ledger.DateOf(filter.From)) {
			return false
		}
		if !filter.To.IsZero() && e.PostingDate.After(ledger.DateOf(filter.To)) {
			return false
		}
		return true
	}), nil
}

func (tx *memoryTx) FetchOpeningEntriesAt(_ context.Context, date time.Time, scope ledger.Scope) ([]ledger.Entry, error) {
	day := ledger.DateOf(date)
	return tx.sorted(func(e ledger.Entry) bool {
		return tx.matches(e, scope) && e.IsOpening && e.PostingDate.Equal(day)
	}), nil
}

func (tx *memoryTx) LockPair(context.Context, ledger.Pair) error {
	return nil
}

func (tx *memoryTx) Insert(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if tx.readOnly {
		return ledger.Entry{}, errReadOnlyTx
	}
	tx.nextID++
	e.ID = tx.nextID
	tx.entries[e.ID] = e
	return e, nil
}

func (tx *memoryTx) UpdateBalance(_ context.Context, entryID int64, balance decimal.Decimal) error {
	if tx.readOnly {
		return errReadOnlyTx
	}
	e, ok := tx.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.Balance = balance
	tx.entries[entryID] = e
	return nil
}

func (tx *memoryTx) GetEntry(_ context.Context, entryID int64) (ledger.Entry, error) {
	e, ok := tx.entries[entryID]
	if !ok || e.DeletedAt != nil {
		return ledger.Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, entryID int64) (ledger.Entry, error) {
	return tx.GetEntry(ctx, entryID)
}

func (tx *memoryTx) UpdateStatus(_ context.Context, entryID int64, status ledger.EntryStatus, at time.Time) error {
	if tx.readOnly {
		return errReadOnlyTx
	}
	e, ok := tx.entries[entryID]
	if !ok || e.DeletedAt != nil {
		return ErrEntryNotFound
	}
	e.Status = status
	e.UpdatedAt = at
	tx.entries[entryID] = e
	return nil
}

func (tx *memoryTx) ListPairs(context.Context) ([]ledger.Pair, error) {
	seen := make(map[ledger.Pair]struct{})
	var pairs []ledger.Pair
	for _, e := range tx.entries {
		if e.DeletedAt != nil {
			continue
		}
		pair, ok := ledger.PairOf(e)
		if !ok {
			continue
		}
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].OrganizationID != pairs[j].OrganizationID {
			return pairs[i].OrganizationID < pairs[j].OrganizationID
		}
		return pairs[i].ChartAccountID < pairs[j].ChartAccountID
	})
	return pairs, nil
}
