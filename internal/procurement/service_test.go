package procurement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

type auditStub struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditStub) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type approvalStub struct {
	logs []shared.ApprovalLog
}

func (a *approvalStub) Record(_ context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	a.logs = append(a.logs, log)
	return nil
}

type fixture struct {
	svc         *Service
	repo        *MemoryRepository
	assignments *shared.MemoryAssignments
	audit       *auditStub
	approvals   *approvalStub
	registry    *prometheus.Registry
	now         time.Time
}

const (
	requester = int64(3)
	approver  = int64(8)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:        NewMemoryRepository(),
		assignments: shared.NewMemoryAssignments(),
		audit:       &auditStub{},
		approvals:   &approvalStub{},
		registry:    prometheus.NewRegistry(),
		now:         time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	metrics := observability.NewLedgerMetrics(f.registry)
	f.svc = NewService(f.repo, f.assignments, f.audit, ServiceConfig{Approvals: f.approvals, Metrics: metrics})
	f.svc.WithNow(func() time.Time { return f.now })
	require.NoError(t, f.assignments.Assign(context.Background(), shared.ApprovalAssignment{
		UserID: approver, Role: approverRole, Context: shared.CostCenterRef{ID: 5},
	}))
	return f
}

func (f *fixture) create(t *testing.T) PurchaseRequisition {
	t.Helper()
	pr, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		OrganizationID: 1,
		CostCenterID:   5,
		RequestedBy:    requester,
		Lines:          []LineInput{{ProductID: 11, Qty: decimal.NewFromInt(2)}, {ProductID: 12, Qty: decimal.RequireFromString("0.5")}},
	})
	require.NoError(t, err)
	return pr
}

func (f *fixture) move(t *testing.T, id int64, to RequisitionStatus, actor int64) PurchaseRequisition {
	t.Helper()
	pr, err := f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: id, To: to, ActorID: actor})
	require.NoError(t, err)
	return pr
}

func TestCreateRequisitionNumbersPerYear(t *testing.T) {
	f := newFixture(t)
	first := f.create(t)
	second := f.create(t)
	require.Equal(t, "PR-2026-000001", first.Number)
	require.Equal(t, "PR-2026-000002", second.Number)
	require.Len(t, first.Lines, 2)
	require.Equal(t, first.ID, first.Lines[0].RequisitionID)

	f.now = time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "PR-2027-000001", f.create(t).Number)

	stored, err := f.svc.GetRequisition(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
	require.Len(t, f.audit.logs, 3)
	require.Equal(t, "PR_CREATE", f.audit.logs[0].Action)
}

func TestCreateRequisitionValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{OrganizationID: 1, CostCenterID: 5, RequestedBy: requester})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		OrganizationID: 1, CostCenterID: 5, RequestedBy: requester,
		Lines: []LineInput{{ProductID: 11, Qty: decimal.NewFromInt(-1)}},
	})
	require.ErrorIs(t, err, ErrValidation)

	// a failed create does not consume a number
	require.Equal(t, "PR-2026-000001", f.create(t).Number)
}

func TestApprovalFlowToNegotiation(t *testing.T) {
	f := newFixture(t)
	pr := f.create(t)

	pr = f.move(t, pr.ID, StatusSubmittedForApproval, requester)
	require.NotNil(t, pr.SubmittedAt)

	f.now = f.now.Add(2 * time.Hour)
	pr = f.move(t, pr.ID, StatusApproved, approver)
	require.Equal(t, f.now, *pr.ApprovedAt)

	f.now = f.now.Add(24 * time.Hour)
	pr = f.move(t, pr.ID, StatusUnderNegotiation, requester)
	require.Equal(t, StatusUnderNegotiation, pr.Status)
	require.Equal(t, f.now, *pr.UnderNegotiationAt)

	stored, err := f.svc.GetRequisition(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUnderNegotiation, stored.Status)
	require.Equal(t, f.now, *stored.UnderNegotiationAt)

	opts := f.svc.AvailableTransitions(stored.Status)
	require.Len(t, opts, 1)
	require.Equal(t, StatusCanceled, opts[0].Value)

	require.Len(t, f.approvals.logs, 2)
	require.Equal(t, shared.ApprovalSubmit, f.approvals.logs[0].Action)
	require.Equal(t, shared.ApprovalApprove, f.approvals.logs[1].Action)
	require.Equal(t, pr.UUID, f.approvals.logs[1].RefID)
}

func TestIllegalTransitionLeavesRequisitionUnchanged(t *testing.T) {
	f := newFixture(t)
	pr := f.create(t)
	f.move(t, pr.ID, StatusSubmittedForApproval, requester)

	_, err := f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: pr.ID, To: StatusUnderNegotiation, ActorID: approver})
	require.ErrorIs(t, err, workflow.ErrIllegalTransition)

	stored, err := f.svc.GetRequisition(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmittedForApproval, stored.Status)
	require.Nil(t, stored.UnderNegotiationAt)
	count, err := testutil.GatherAndCount(f.registry, "odyssey_workflow_illegal_transitions_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestApproveRequiresApproverRole(t *testing.T) {
	f := newFixture(t)
	pr := f.create(t)
	f.move(t, pr.ID, StatusSubmittedForApproval, requester)

	_, err := f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: pr.ID, To: StatusApproved, ActorID: requester})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: pr.ID, To: StatusRejected, ActorID: requester})
	require.ErrorIs(t, err, shared.ErrForbidden)

	stored, err := f.svc.GetRequisition(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmittedForApproval, stored.Status)

	// cancelling is not gated by role
	f.move(t, pr.ID, StatusCanceled, requester)
}

func TestProjectApproverMayApprove(t *testing.T) {
	f := newFixture(t)
	project := int64(77)
	pr, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		OrganizationID: 1, CostCenterID: 6, ProjectID: &project, RequestedBy: requester,
		Lines: []LineInput{{ProductID: 11, Qty: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)
	require.NoError(t, f.assignments.Assign(context.Background(), shared.ApprovalAssignment{UserID: 9, Role: approverRole, Context: shared.ProjectRef{ID: project}}))

	f.move(t, pr.ID, StatusSubmittedForApproval, requester)
	_, err = f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: pr.ID, To: StatusApproved, ActorID: approver})
	require.ErrorIs(t, err, shared.ErrForbidden)
	f.move(t, pr.ID, StatusApproved, 9)
}

func TestRejectedRequisitionReturnsToDraft(t *testing.T) {
	f := newFixture(t)
	pr := f.create(t)
	f.move(t, pr.ID, StatusSubmittedForApproval, requester)
	f.move(t, pr.ID, StatusRejected, approver)
	pr = f.move(t, pr.ID, StatusDraft, requester)
	require.Equal(t, StatusDraft, pr.Status)
	require.Equal(t, shared.ApprovalReject, f.approvals.logs[1].Action)
}

func TestTerminalStatusesRejectEverything(t *testing.T) {
	f := newFixture(t)
	pr := f.create(t)
	f.move(t, pr.ID, StatusCanceled, requester)
	for _, to := range allStatuses {
		_, err := f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: pr.ID, To: to, ActorID: approver})
		require.ErrorIs(t, err, workflow.ErrIllegalTransition, "canceled -> %s", to)
	}
}

func TestTransitionUnknownRequisition(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: 404, To: StatusCanceled, ActorID: requester})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: 1, To: StatusCanceled})
	require.ErrorIs(t, err, ErrValidation)
}

type failingAssignments struct{}

func (failingAssignments) HasRole(context.Context, int64, string, shared.ContextRef) (bool, error) {
	return false, errors.New("assignments offline")
}

func TestAssignmentFailureAbortsTransition(t *testing.T) {
	f := newFixture(t)
	pr := f.create(t)
	f.move(t, pr.ID, StatusSubmittedForApproval, requester)

	svc := NewService(f.repo, failingAssignments{}, nil, ServiceConfig{})
	_, err := svc.TransitionRequisition(context.Background(), TransitionInput{RequisitionID: pr.ID, To: StatusApproved, ActorID: approver})
	require.EqualError(t, err, "assignments offline")

	stored, err := f.svc.GetRequisition(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmittedForApproval, stored.Status)
}

func TestAssignAndRevokeApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.create(t)
	f.move(t, pr.ID, StatusSubmittedForApproval, requester)

	require.NoError(t, f.svc.AssignApprover(ctx, 21, shared.CostCenterRef{ID: 5}))
	require.ErrorIs(t, f.svc.AssignApprover(ctx, 21, shared.CostCenterRef{ID: 5}), shared.ErrAssignmentExists)
	require.ErrorIs(t, f.svc.AssignApprover(ctx, 0, shared.CostCenterRef{ID: 5}), ErrValidation)
	require.ErrorIs(t, f.svc.AssignApprover(ctx, 21, nil), ErrValidation)

	require.NoError(t, f.svc.RevokeApprover(ctx, 21, shared.CostCenterRef{ID: 5}))
	_, err := f.svc.TransitionRequisition(ctx, TransitionInput{RequisitionID: pr.ID, To: StatusApproved, ActorID: 21})
	require.ErrorIs(t, err, shared.ErrForbidden)

	var actions []string
	for _, log := range f.audit.logs {
		actions = append(actions, log.Action)
	}
	require.Contains(t, actions, "APPROVER_ASSIGN")
	require.Contains(t, actions, "APPROVER_REVOKE")

	listed, err := f.svc.ListApprovers(ctx, shared.CostCenterRef{ID: 5})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, approver, listed[0].UserID)
	_, err = f.svc.ListApprovers(ctx, nil)
	require.ErrorIs(t, err, ErrValidation)

	readOnly := NewService(f.repo, failingAssignments{}, nil, ServiceConfig{})
	require.ErrorIs(t, readOnly.AssignApprover(ctx, 21, shared.CostCenterRef{ID: 5}), ErrAssignmentsReadOnly)
	_, err = readOnly.ListApprovers(ctx, shared.CostCenterRef{ID: 5})
	require.ErrorIs(t, err, ErrAssignmentsReadOnly)
}

type historyStub struct {
	approvalStub
}

func (h *historyStub) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range h.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func TestApprovalHistory(t *testing.T) {
	f := newFixture(t)
	history := &historyStub{}
	f.svc = NewService(f.repo, f.assignments, f.audit, ServiceConfig{Approvals: history})
	f.svc.WithNow(func() time.Time { return f.now })

	pr := f.create(t)
	other := f.create(t)
	f.move(t, pr.ID, StatusSubmittedForApproval, requester)
	f.move(t, other.ID, StatusSubmittedForApproval, requester)
	f.move(t, pr.ID, StatusRejected, approver)

	logs, err := f.svc.ApprovalHistory(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, shared.ApprovalReject, logs[1].Action)

	_, err = f.svc.ApprovalHistory(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}
