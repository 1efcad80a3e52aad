package procurement

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryRepository keeps requisitions in process memory. Transactions work on
// a copy that replaces the original only when fn succeeds.
type MemoryRepository struct {
	mu           sync.Mutex
	requisitions map[int64]PurchaseRequisition
	sequences    map[string]int64
	nextID       int64
	nextLineID   int64
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requisitions: make(map[int64]PurchaseRequisition),
		sequences:    make(map[string]int64),
	}
}

func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{
		requisitions: maps.Clone(m.requisitions),
		sequences:    maps.Clone(m.sequences),
		nextID:       m.nextID,
		nextLineID:   m.nextLineID,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.requisitions, m.sequences = tx.requisitions, tx.sequences
	m.nextID, m.nextLineID = tx.nextID, tx.nextLineID
	return nil
}

func (m *MemoryRepository) GetRequisition(_ context.Context, id int64) (PurchaseRequisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.requisitions[id]
	if !ok {
		return PurchaseRequisition{}, ErrNotFound
	}
	pr.Lines = slices.Clone(pr.Lines)
	return pr, nil
}

type memoryTx struct {
	requisitions map[int64]PurchaseRequisition
	sequences    map[string]int64
	nextID       int64
	nextLineID   int64
}

func (tx *memoryTx) NextSequence(_ context.Context, name string) (int64, error) {
	tx.sequences[name]++
	return tx.sequences[name], nil
}

func (tx *memoryTx) InsertRequisition(_ context.Context, pr PurchaseRequisition) (PurchaseRequisition, error) {
	tx.nextID++
	pr.ID = tx.nextID
	lines := make([]RequisitionLine, len(pr.Lines))
	for i, line := range pr.Lines {
		tx.nextLineID++
		line.ID, line.RequisitionID = tx.nextLineID, pr.ID
		lines[i] = line
	}
	pr.Lines = lines
	tx.requisitions[pr.ID] = pr
	return pr, nil
}

func (tx *memoryTx) GetRequisitionForUpdate(_ context.Context, id int64) (PurchaseRequisition, error) {
	pr, ok := tx.requisitions[id]
	if !ok {
		return PurchaseRequisition{}, ErrNotFound
	}
	pr.Lines = slices.Clone(pr.Lines)
	return pr, nil
}

func (tx *memoryTx) UpdateRequisitionStatus(_ context.Context, pr PurchaseRequisition) error {
	stored, ok := tx.requisitions[pr.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = pr.Status
	stored.SubmittedAt = pr.SubmittedAt
	stored.ApprovedAt = pr.ApprovedAt
	stored.UnderNegotiationAt = pr.UnderNegotiationAt
	stored.CanceledAt = pr.CanceledAt
	stored.UpdatedAt = pr.UpdatedAt
	tx.requisitions[pr.ID] = stored
	return nil
}
