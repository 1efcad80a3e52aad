package accounts

import (
	"context"
	"slices"
	"sync"
)

// MemoryRepository keeps chart accounts in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts []Account
}

// NewMemoryRepository returns a repository holding seed.
func NewMemoryRepository(seed ...Account) *MemoryRepository {
	return &MemoryRepository{accounts: slices.Clone(seed)}
}

func (m *MemoryRepository) List(_ context.Context, organizationID int64) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Account
	for _, a := range m.accounts {
		if a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Get(_ context.Context, organizationID, id int64) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.OrganizationID == organizationID && a.ID == id {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (m *MemoryRepository) Create(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.OrganizationID == a.OrganizationID && existing.Code == a.Code {
			return Account{}, ErrDuplicateCode
		}
	}
	a.ID = int64(len(m.accounts) + 1)
	m.accounts = append(m.accounts, a)
	return a, nil
}
