package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Scope narrows queries to an optional chart account and organization.
type Scope struct {
	ChartAccountID   *int64
	OrganizationID   *int64
	IncludeCancelled bool
}

// Statuses lists the entry statuses a scope reads.
func (s Scope) Statuses() []EntryStatus {
	if s.IncludeCancelled {
		return []EntryStatus{StatusActive, StatusCancelled}
	}
	return []EntryStatus{StatusActive}
}

// ScopeOf returns the scope that selects exactly the active entries of a pair.
func ScopeOf(p Pair) Scope {
	accountID, orgID := p.ChartAccountID, p.OrganizationID
	return Scope{ChartAccountID: &accountID, OrganizationID: &orgID}
}

// MovementFilter selects entries dated strictly before Before.
type MovementFilter struct {
	Scope
	Before time.Time
}

// EntryFilter selects entries dated within [From, To]. Zero bounds are open.
type EntryFilter struct {
	Scope
	From time.Time
	To   time.Time
}

// Reader is the read side of the entry repository. Implementations must
// exclude soft-deleted entries and order FetchOrdered by (posting date, id).
type Reader interface {
	SumSignedMovement(ctx context.Context, filter MovementFilter) (decimal.Decimal, error)
	FetchOrdered(ctx context.Context, filter EntryFilter) ([]Entry, error)
	FetchOpeningEntriesAt(ctx context.Context, date time.Time, scope Scope) ([]Entry, error)
}

// Filters parameterize a ledger build.
type Filters struct {
	StartDate               time.Time `json:"start_date" validate:"required"`
	EndDate                 time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
	ChartAccountID          *int64    `json:"chart_account_id,omitempty" validate:"omitempty,gt=0"`
	OrganizationID          *int64    `json:"organization_id,omitempty" validate:"omitempty,gt=0"`
	IncludeOpeningStructure bool      `json:"include_opening_structure"`
	IncludeCancelled        bool      `json:"include_cancelled"`
	Currency                string    `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// Normalized truncates the date bounds to calendar dates.
func (f Filters) Normalized() Filters {
	f.StartDate = DateOf(f.StartDate)
	f.EndDate = DateOf(f.EndDate)
	return f
}

// Scope returns the repository scope of the filters.
func (f Filters) Scope() Scope {
	return Scope{
		ChartAccountID:   f.ChartAccountID,
		OrganizationID:   f.OrganizationID,
		IncludeCancelled: f.IncludeCancelled,
	}
}
