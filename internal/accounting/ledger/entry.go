// Package ledger reconstructs general ledger views from accounting entries.
//
// Entries are immutable facts; balances are derived by folding signed
// movements (debit minus credit) in (posting date, id) order.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

// EntryStatus enumerates accounting entry lifecycle values.
type EntryStatus string

const (
	StatusDraft     EntryStatus = "draft"
	StatusActive    EntryStatus = "active"
	StatusCancelled EntryStatus = "cancelled"
)

// EntryTransitions governs entry status changes. Only active entries take part
// in balance folds, so every edge here implies a recalculation.
var EntryTransitions = workflow.MustTable(
	workflow.Entry[EntryStatus]{State: StatusDraft, Spec: workflow.Spec[EntryStatus]{
		Label: "Draft", Color: "gray", Icon: "pencil",
		Next: []EntryStatus{StatusActive, StatusCancelled},
	}},
	workflow.Entry[EntryStatus]{State: StatusActive, Spec: workflow.Spec[EntryStatus]{
		Label: "Active", Color: "green", Icon: "check",
		Next: []EntryStatus{StatusCancelled},
	}},
	workflow.Entry[EntryStatus]{State: StatusCancelled, Spec: workflow.Spec[EntryStatus]{
		Label: "Cancelled", Color: "red", Icon: "x",
	}},
)

// Voucher types of rows synthesized by the assembler.
const (
	VoucherOpeningHeader   = "Opening Header"
	VoucherPreviousBalance = "Previous Balance"
	VoucherTotal           = "Total"
	VoucherClosing         = "Closing Balance"
)

// Entry is a single accounting movement, or a synthesized ledger row when
// IsSystemGenerated is set.
type Entry struct {
	ID                int64           `json:"id"`
	UUID              uuid.UUID       `json:"uuid"`
	ChartAccountID    *int64          `json:"chart_account_id"`
	OrganizationID    *int64          `json:"organization_id"`
	BranchID          *int64          `json:"branch_id,omitempty"`
	SupplierID        *int64          `json:"supplier_id,omitempty"`
	PostingDate       time.Time       `json:"posting_date"`
	VoucherType       string          `json:"voucher_type"`
	VoucherSubtype    string          `json:"voucher_subtype,omitempty"`
	VoucherNumber     string          `json:"voucher_number,omitempty"`
	AgainstVoucher    string          `json:"against_voucher,omitempty"`
	PartnerType       string          `json:"partner_type,omitempty"`
	PartnerName       string          `json:"partner_name,omitempty"`
	Project           string          `json:"project,omitempty"`
	Description       string          `json:"description,omitempty"`
	Remarks           string          `json:"remarks,omitempty"`
	Currency          string          `json:"currency"`
	Debit             decimal.Decimal `json:"debit"`
	Credit            decimal.Decimal `json:"credit"`
	Balance           decimal.Decimal `json:"balance"`
	IsOpening         bool            `json:"is_opening_entry"`
	IsClosing         bool            `json:"is_closing_entry"`
	IsSystemGenerated bool            `json:"is_system_generated"`
	Status            EntryStatus     `json:"status"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Movement returns the signed movement debit - credit.
func (e Entry) Movement() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// Before reports whether e sorts before other in (posting date, id) order.
func (e Entry) Before(other Entry) bool {
	if !e.PostingDate.Equal(other.PostingDate) {
		return e.PostingDate.Before(other.PostingDate)
	}
	return e.ID < other.ID
}

// EntryParams carries the caller supplied fields of a new entry.
type EntryParams struct {
	ChartAccountID int64
	OrganizationID int64
	BranchID       *int64
	SupplierID     *int64
	PostingDate    time.Time
	VoucherType    string
	VoucherSubtype string
	VoucherNumber  string
	AgainstVoucher string
	PartnerType    string
	PartnerName    string
	Project        string
	Description    string
	Remarks        string
	Currency       string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	IsOpening      bool
	Status         EntryStatus
}

var (
	// ErrPairRequired indicates a persisted entry without account or organization.
	ErrPairRequired = errors.New("ledger: chart account and organization required")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("ledger: debit and credit must not be negative")
	// ErrBothSides indicates an entry carrying both debit and credit.
	ErrBothSides = errors.New("ledger: entry cannot be both debit and credit")
	// ErrPostingDateRequired indicates a missing posting date.
	ErrPostingDateRequired = errors.New("ledger: posting date required")
	// ErrUnknownStatus indicates a status outside EntryTransitions.
	ErrUnknownStatus = errors.New("ledger: unknown entry status")
)

// NewEntry builds a persistable entry. Identity and timestamps are assigned
// here; the balance stays zero until the pair is recalculated.
func NewEntry(p EntryParams, now time.Time) (Entry, error) {
	if p.ChartAccountID <= 0 || p.OrganizationID <= 0 {
		return Entry{}, ErrPairRequired
	}
	if p.PostingDate.IsZero() {
		return Entry{}, ErrPostingDateRequired
	}
	if p.Debit.IsNegative() || p.Credit.IsNegative() {
		return Entry{}, ErrNegativeAmount
	}
	if p.Debit.IsPositive() && p.Credit.IsPositive() {
		return Entry{}, ErrBothSides
	}
	status := p.Status
	if status == "" {
		status = StatusActive
	}
	if !EntryTransitions.Known(status) {
		return Entry{}, ErrUnknownStatus
	}
	code, err := NormalizeCurrency(p.Currency)
	if err != nil {
		return Entry{}, err
	}
	accountID, orgID := p.ChartAccountID, p.OrganizationID
	now = now.UTC()
	return Entry{
		UUID:           uuid.New(),
		ChartAccountID: &accountID,
		OrganizationID: &orgID,
		BranchID:       p.BranchID,
		SupplierID:     p.SupplierID,
		PostingDate:    DateOf(p.PostingDate),
		VoucherType:    strings.TrimSpace(p.VoucherType),
		VoucherSubtype: strings.TrimSpace(p.VoucherSubtype),
		VoucherNumber:  strings.TrimSpace(p.VoucherNumber),
		AgainstVoucher: strings.TrimSpace(p.AgainstVoucher),
		PartnerType:    p.PartnerType,
		PartnerName:    p.PartnerName,
		Project:        p.Project,
		Description:    p.Description,
		Remarks:        p.Remarks,
		Currency:       code,
		Debit:          RoundAmount(p.Debit),
		Credit:         RoundAmount(p.Credit),
		Balance:        decimal.Zero,
		IsOpening:      p.IsOpening,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Pair identifies the (chart account, organization) scope balances are kept for.
type Pair struct {
	ChartAccountID int64 `json:"chart_account_id" validate:"required,gt=0"`
	OrganizationID int64 `json:"organization_id" validate:"required,gt=0"`
}

// PairOf returns the pair of a persisted entry.
func PairOf(e Entry) (Pair, bool) {
	if e.ChartAccountID == nil || e.OrganizationID == nil {
		return Pair{}, false
	}
	return Pair{ChartAccountID: *e.ChartAccountID, OrganizationID: *e.OrganizationID}, true
}

// NewEntryGate returns the gate entry status changes must pass through.
func NewEntryGate() *workflow.Gate[EntryStatus, Entry] {
	return workflow.NewGate(EntryTransitions, workflow.Accessor[EntryStatus, Entry]{
		Get: func(e Entry) EntryStatus { return e.Status },
		Set: func(e Entry, s EntryStatus) Entry {
			e.Status = s
			return e
		},
	})
}
