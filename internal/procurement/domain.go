package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

// PurchaseRequisition is an internal request to buy goods, approved within
// its cost center before negotiation with suppliers.
type PurchaseRequisition struct {
	ID                 int64             `json:"id"`
	UUID               uuid.UUID         `json:"uuid"`
	Number             string            `json:"number"`
	OrganizationID     int64             `json:"organization_id"`
	CostCenterID       int64             `json:"cost_center_id"`
	ProjectID          *int64            `json:"project_id,omitempty"`
	RequestedBy        int64             `json:"requested_by"`
	Status             RequisitionStatus `json:"status"`
	Note               string            `json:"note,omitempty"`
	Lines              []RequisitionLine `json:"lines"`
	SubmittedAt        *time.Time        `json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time        `json:"approved_at,omitempty"`
	UnderNegotiationAt *time.Time        `json:"under_negotiation_at,omitempty"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// RequisitionLine is one requested item.
type RequisitionLine struct {
	ID            int64           `json:"id"`
	RequisitionID int64           `json:"requisition_id"`
	ProductID     int64           `json:"product_id"`
	Qty           decimal.Decimal `json:"qty"`
	Note          string          `json:"note,omitempty"`
}

// Contexts lists the approval contexts of the requisition, cost center first.
func (pr PurchaseRequisition) Contexts() []shared.ContextRef {
	refs := []shared.ContextRef{shared.CostCenterRef{ID: pr.CostCenterID}}
	if pr.ProjectID != nil {
		refs = append(refs, shared.ProjectRef{ID: *pr.ProjectID})
	}
	return refs
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)

// RequisitionParams carries what a caller supplies for a new requisition.
type RequisitionParams struct {
	OrganizationID int64
	CostCenterID   int64
	ProjectID      *int64
	RequestedBy    int64
	Note           string
	Lines          []LineParams
}

// LineParams describes a requested item.
type LineParams struct {
	ProductID int64
	Qty       decimal.Decimal
	Note      string
}

// RequisitionNumber formats the human number of the seq-th requisition of year.
func RequisitionNumber(year int, seq int64) string {
	return fmt.Sprintf("PR-%04d-%06d", year, seq)
}

// NewRequisition builds a draft requisition with its number, UUID and
// timestamps computed up front. seq is the next value of the year's sequence.
func NewRequisition(p RequisitionParams, seq int64, now time.Time) (PurchaseRequisition, error) {
	if p.OrganizationID <= 0 || p.CostCenterID <= 0 || p.RequestedBy <= 0 {
		return PurchaseRequisition{}, fmt.Errorf("%w: organization, cost center and requester required", ErrValidation)
	}
	if p.ProjectID != nil && *p.ProjectID <= 0 {
		return PurchaseRequisition{}, fmt.Errorf("%w: invalid project", ErrValidation)
	}
	if len(p.Lines) == 0 {
		return PurchaseRequisition{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	if seq <= 0 {
		return PurchaseRequisition{}, fmt.Errorf("%w: sequence must be positive", ErrValidation)
	}
	lines := make([]RequisitionLine, len(p.Lines))
	for i, l := range p.Lines {
		if l.ProductID <= 0 || !l.Qty.IsPositive() {
			return PurchaseRequisition{}, fmt.Errorf("%w: line %d needs a product and positive qty", ErrValidation, i+1)
		}
		lines[i] = RequisitionLine{ProductID: l.ProductID, Qty: l.Qty, Note: strings.TrimSpace(l.Note)}
	}
	now = now.UTC()
	return PurchaseRequisition{
		UUID:           uuid.New(),
		Number:         RequisitionNumber(now.Year(), seq),
		OrganizationID: p.OrganizationID,
		CostCenterID:   p.CostCenterID,
		ProjectID:      p.ProjectID,
		RequestedBy:    p.RequestedBy,
		Status:         StatusDraft,
		Note:           strings.TrimSpace(p.Note),
		Lines:          lines,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewRequisitionGate returns the gate guarding requisition status changes.
// Entering any status stamps UpdatedAt, and the milestone statuses also stamp
// their own timestamp on the same copy that receives the new status.
func NewRequisitionGate() *workflow.Gate[RequisitionStatus, PurchaseRequisition] {
	gate := workflow.NewGate(RequisitionTransitions, workflow.Accessor[RequisitionStatus, PurchaseRequisition]{
		Get: func(pr PurchaseRequisition) RequisitionStatus { return pr.Status },
		Set: func(pr PurchaseRequisition, s RequisitionStatus) PurchaseRequisition {
			pr.Status = s
			return pr
		},
	})
	stamp := func(field func(*PurchaseRequisition) **time.Time) workflow.Hook[PurchaseRequisition] {
		return func(_ context.Context, pr PurchaseRequisition, at time.Time) (PurchaseRequisition, error) {
			at = at.UTC()
			*field(&pr) = &at
			return pr, nil
		}
	}
	touch := func(_ context.Context, pr PurchaseRequisition, at time.Time) (PurchaseRequisition, error) {
		pr.UpdatedAt = at.UTC()
		return pr, nil
	}
	for _, status := range RequisitionTransitions.States() {
		gate.OnEnter(status, touch)
	}
	gate.OnEnter(StatusSubmittedForApproval, stamp(func(pr *PurchaseRequisition) **time.Time { return &pr.SubmittedAt }))
	gate.OnEnter(StatusApproved, stamp(func(pr *PurchaseRequisition) **time.Time { return &pr.ApprovedAt }))
	gate.OnEnter(StatusUnderNegotiation, stamp(func(pr *PurchaseRequisition) **time.Time { return &pr.UnderNegotiationAt }))
	gate.OnEnter(StatusCanceled, stamp(func(pr *PurchaseRequisition) **time.Time { return &pr.CanceledAt }))
	return gate
}
