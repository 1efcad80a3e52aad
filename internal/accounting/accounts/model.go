package accounts

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// AccountType is the debit/credit orientation of an account.
type AccountType string

const (
	AccountTypeDebit  AccountType = "D"
	AccountTypeCredit AccountType = "C"
)

// Valid reports whether t is a known orientation.
func (t AccountType) Valid() bool {
	return t == AccountTypeDebit || t == AccountTypeCredit
}

var (
	// ErrNotFound indicates a missing account.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrInvalidAccount indicates an account failing validation.
	ErrInvalidAccount = errors.New("accounts: invalid account")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = errors.New("accounts: code already exists")
	// ErrParentNotFound indicates a parent outside the organization.
	ErrParentNotFound = errors.New("accounts: parent account not found")
)

// Account models a chart of accounts node. The amount is stored in minor
// units and presented as a major-unit decimal.
type Account struct {
	ID             int64
	OrganizationID int64
	Code           string
	Name           string
	Type           AccountType
	AmountMinor    int64
	ParentID       *int64
	Children       []Account
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Amount presents the stored minor-unit amount in major units.
func (a Account) Amount() decimal.Decimal {
	return ledger.FromMinor(a.AmountMinor)
}

type accountJSON struct {
	ID             int64       `json:"id"`
	OrganizationID int64       `json:"organization_id"`
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	Amount         string      `json:"amount"`
	ParentID       *int64      `json:"parent_id,omitempty"`
	Children       []Account   `json:"children,omitempty"`
}

// MarshalJSON exposes the major-unit amount only.
func (a Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(accountJSON{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		Code:           a.Code,
		Name:           a.Name,
		Type:           a.Type,
		Amount:         a.Amount().StringFixed(ledger.MinorScale),
		ParentID:       a.ParentID,
		Children:       a.Children,
	})
}

// CreateInput describes a new chart account.
type CreateInput struct {
	OrganizationID int64       `validate:"required,gt=0"`
	Code           string      `validate:"required,max=32"`
	Name           string      `validate:"required,max=255"`
	Type           AccountType `validate:"required,oneof=D C"`
	Amount         decimal.Decimal
	ParentID       *int64 `validate:"omitempty,gt=0"`
}

// BuildTree nests accounts under their parents ordered by code. Accounts whose
// parent is absent from the list become roots.
func BuildTree(accounts []Account) []Account {
	byParent := make(map[int64][]Account)
	present := make(map[int64]struct{}, len(accounts))
	for _, a := range accounts {
		present[a.ID] = struct{}{}
	}
	var roots []Account
	for _, a := range accounts {
		if a.ParentID != nil {
			if _, ok := present[*a.ParentID]; ok {
				byParent[*a.ParentID] = append(byParent[*a.ParentID], a)
				continue
			}
		}
		roots = append(roots, a)
	}
	// Accounts caught in a parent cycle never reach a root and are dropped.
	var attach func(nodes []Account) []Account
	attach = func(nodes []Account) []Account {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Code < nodes[j].Code })
		for i := range nodes {
			nodes[i].Children = attach(byParent[nodes[i].ID])
		}
		return nodes
	}
	return attach(roots)
}
