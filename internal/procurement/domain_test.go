package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

var allStatuses = []RequisitionStatus{
	StatusDraft, StatusSubmittedForApproval, StatusApproved, StatusRejected,
	StatusUnderNegotiation, StatusClosed, StatusCanceled,
}

func TestRequisitionTableMatchesAdjacency(t *testing.T) {
	legal := map[RequisitionStatus][]RequisitionStatus{
		StatusDraft:                {StatusSubmittedForApproval, StatusCanceled},
		StatusSubmittedForApproval: {StatusCanceled, StatusApproved, StatusRejected},
		StatusApproved:             {StatusUnderNegotiation, StatusCanceled},
		StatusRejected:             {StatusDraft},
		StatusUnderNegotiation:     {StatusCanceled},
	}
	pairs := 0
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			pairs++
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			require.Equal(t, want, RequisitionTransitions.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	require.Equal(t, 49, pairs)
	require.Equal(t, allStatuses, RequisitionTransitions.States())
	require.True(t, RequisitionTransitions.Terminal(StatusClosed))
	require.True(t, RequisitionTransitions.Terminal(StatusCanceled))
	require.Empty(t, RequisitionTransitions.Allowed("archived"))
}

func TestAvailableTransitionsPresentation(t *testing.T) {
	opts := RequisitionTransitions.Available(StatusSubmittedForApproval)
	require.Len(t, opts, 3)
	require.Equal(t, StatusCanceled, opts[0].Value)
	require.Equal(t, "Approved", opts[1].Label)
	require.Equal(t, "green", opts[1].Color)
}

func validParams() RequisitionParams {
	return RequisitionParams{
		OrganizationID: 1,
		CostCenterID:   5,
		RequestedBy:    3,
		Note:           "  laptops ",
		Lines:          []LineParams{{ProductID: 11, Qty: decimal.NewFromInt(2)}},
	}
}

func TestNewRequisitionComputesDerivedFields(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	pr, err := NewRequisition(validParams(), 42, now)
	require.NoError(t, err)
	require.Equal(t, "PR-2026-000042", pr.Number)
	require.Equal(t, StatusDraft, pr.Status)
	require.Equal(t, "laptops", pr.Note)
	require.NotEqual(t, [16]byte{}, [16]byte(pr.UUID))
	require.Equal(t, time.UTC, pr.CreatedAt.Location())
	require.Nil(t, pr.UnderNegotiationAt)
}

func TestNewRequisitionRejectsInvalidParams(t *testing.T) {
	cases := map[string]func(*RequisitionParams){
		"no cost center": func(p *RequisitionParams) { p.CostCenterID = 0 },
		"no lines":       func(p *RequisitionParams) { p.Lines = nil },
		"zero qty":       func(p *RequisitionParams) { p.Lines[0].Qty = decimal.Zero },
		"bad project":    func(p *RequisitionParams) { zero := int64(0); p.ProjectID = &zero },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			mutate(&p)
			_, err := NewRequisition(p, 1, time.Now())
			require.ErrorIs(t, err, ErrValidation)
		})
	}
	_, err := NewRequisition(validParams(), 0, time.Now())
	require.ErrorIs(t, err, ErrValidation)
}

func TestGateRejectsNegotiationBeforeApproval(t *testing.T) {
	gate := NewRequisitionGate()
	pr := PurchaseRequisition{ID: 1, Status: StatusSubmittedForApproval}

	out, err := gate.Attempt(context.Background(), pr, StatusUnderNegotiation)
	require.ErrorIs(t, err, workflow.ErrIllegalTransition)
	var illegal *workflow.IllegalTransitionError[RequisitionStatus]
	require.True(t, errors.As(err, &illegal))
	require.Equal(t, StatusSubmittedForApproval, illegal.From)
	require.Equal(t, StatusUnderNegotiation, illegal.To)
	require.Equal(t, StatusSubmittedForApproval, out.Status)
	require.Nil(t, out.UnderNegotiationAt)
}

func TestGateStampsNegotiationTime(t *testing.T) {
	at := time.Date(2026, 4, 3, 10, 30, 0, 0, time.UTC)
	gate := NewRequisitionGate()
	gate.WithNow(func() time.Time { return at })

	pr := PurchaseRequisition{ID: 1, Status: StatusApproved}
	out, err := gate.Attempt(context.Background(), pr, StatusUnderNegotiation)
	require.NoError(t, err)
	require.Equal(t, StatusUnderNegotiation, out.Status)
	require.NotNil(t, out.UnderNegotiationAt)
	require.Equal(t, at, *out.UnderNegotiationAt)
	require.Equal(t, at, out.UpdatedAt)

	// the caller's value is untouched
	require.Equal(t, StatusApproved, pr.Status)
	require.Nil(t, pr.UnderNegotiationAt)

	opts := gate.Available(out)
	require.Len(t, opts, 1)
	require.Equal(t, StatusCanceled, opts[0].Value)
}

func TestGateTouchesUpdatedAtOnEveryStatus(t *testing.T) {
	rejectedAt := time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC)
	gate := NewRequisitionGate()
	gate.WithNow(func() time.Time { return rejectedAt })

	pr := PurchaseRequisition{ID: 1, Status: StatusSubmittedForApproval, UpdatedAt: rejectedAt.Add(-time.Hour)}
	out, err := gate.Attempt(context.Background(), pr, StatusRejected)
	require.NoError(t, err)
	require.Equal(t, rejectedAt, out.UpdatedAt)
	require.Nil(t, out.ApprovedAt)

	reopenedAt := rejectedAt.Add(30 * time.Minute)
	gate.WithNow(func() time.Time { return reopenedAt })
	out, err = gate.Attempt(context.Background(), out, StatusDraft)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, out.Status)
	require.Equal(t, reopenedAt, out.UpdatedAt)
}
