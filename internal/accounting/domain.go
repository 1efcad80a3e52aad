package accounting

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// RecordEntryInput describes a new accounting entry.
type RecordEntryInput struct {
	ChartAccountID int64     `validate:"required,gt=0"`
	OrganizationID int64     `validate:"required,gt=0"`
	BranchID       *int64    `validate:"omitempty,gt=0"`
	SupplierID     *int64    `validate:"omitempty,gt=0"`
	PostingDate    time.Time `validate:"required"`
	VoucherType    string    `validate:"required,max=64"`
	VoucherSubtype string    `validate:"max=64"`
	VoucherNumber  string    `validate:"max=64"`
	AgainstVoucher string    `validate:"max=64"`
	PartnerType    string    `validate:"max=64"`
	PartnerName    string    `validate:"max=255"`
	Project        string    `validate:"max=255"`
	Description    string    `validate:"max=1000"`
	Remarks        string    `validate:"max=1000"`
	Currency       string    `validate:"required,len=3"`
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	IsOpening      bool
	Status         ledger.EntryStatus `validate:"omitempty,oneof=draft active"`
	ActorID        int64
	IdempotencyKey string    `validate:"max=128"`
}

func (in RecordEntryInput) params() ledger.EntryParams {
	return ledger.EntryParams{
		ChartAccountID: in.ChartAccountID,
		OrganizationID: in.OrganizationID,
		BranchID:       in.BranchID,
		SupplierID:     in.SupplierID,
		PostingDate:    in.PostingDate,
		VoucherType:    in.VoucherType,
		VoucherSubtype: in.VoucherSubtype,
		VoucherNumber:  in.VoucherNumber,
		AgainstVoucher: in.AgainstVoucher,
		PartnerType:    in.PartnerType,
		PartnerName:    in.PartnerName,
		Project:        in.Project,
		Description:    in.Description,
		Remarks:        in.Remarks,
		Currency:       in.Currency,
		Debit:          in.Debit,
		Credit:         in.Credit,
		IsOpening:      in.IsOpening,
		Status:         in.Status,
	}
}

// ChangeStatusInput moves an entry along the entry status table.
type ChangeStatusInput struct {
	EntryID int64              `validate:"required,gt=0"`
	To      ledger.EntryStatus `validate:"required"`
	ActorID int64
	Reason  string `validate:"max=500"`
}

// Recalculation summarizes one balance rewrite of a pair.
type Recalculation struct {
	Pair    ledger.Pair     `json:"pair"`
	Entries int             `json:"entries"`
	Updated int             `json:"updated"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceMismatch is an entry whose stored balance differs from the fold.
type BalanceMismatch struct {
	EntryID  int64           `json:"entry_id"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// IntegrityReport is the outcome of verifying a pair without writing.
type IntegrityReport struct {
	Pair       ledger.Pair       `json:"pair"`
	Checked    int               `json:"checked"`
	Mismatches []BalanceMismatch `json:"mismatches"`
}

// Consistent reports whether every stored balance matched.
func (r IntegrityReport) Consistent() bool {
	return len(r.Mismatches) == 0
}

var (
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("accounting: entry not found")
	// ErrInvalidInput indicates a request failing validation.
	ErrInvalidInput = errors.New("accounting: invalid input")
	// ErrDuplicateRequest indicates a replayed idempotency key.
	ErrDuplicateRequest = errors.New("accounting: request already processed")
	// ErrSystemEntry indicates an attempt to mutate a synthesized row.
	ErrSystemEntry = errors.New("accounting: system generated rows are not persisted")
)
