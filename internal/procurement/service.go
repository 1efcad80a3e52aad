package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/workflow"
)

const (
	approvalModule = "procurement.requisition"
	auditEntity    = "purchase_requisition"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequisition(ctx context.Context, id int64) (PurchaseRequisition, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// NextSequence increments and returns the named counter.
	NextSequence(ctx context.Context, name string) (int64, error)
	InsertRequisition(ctx context.Context, pr PurchaseRequisition) (PurchaseRequisition, error)
	GetRequisitionForUpdate(ctx context.Context, id int64) (PurchaseRequisition, error)
	UpdateRequisitionStatus(ctx context.Context, pr PurchaseRequisition) error
}

// AssignmentPort answers role checks against approval assignments.
type AssignmentPort interface {
	HasRole(ctx context.Context, userID int64, role string, ref shared.ContextRef) (bool, error)
}

// AssignmentWriter manages approval assignments. Assignment stores that
// implement it enable AssignApprover and RevokeApprover.
type AssignmentWriter interface {
	Assign(ctx context.Context, a shared.ApprovalAssignment) error
	Revoke(ctx context.Context, a shared.ApprovalAssignment) error
}

// AssignmentLister lists the assignments bound to a context.
type AssignmentLister interface {
	ListForContext(ctx context.Context, ref shared.ContextRef) ([]shared.ApprovalAssignment, error)
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// ApprovalHistory lists recorded approvals.
type ApprovalHistory interface {
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// ErrAssignmentsReadOnly indicates the configured assignment store cannot be
// modified.
var ErrAssignmentsReadOnly = errors.New("procurement: approval assignments are read-only")

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Approvals ApprovalPort
	Metrics   *observability.LedgerMetrics
	Logger    *slog.Logger
}

// Service orchestrates the requisition workflow.
type Service struct {
	repo        RepositoryPort
	assignments AssignmentPort
	audit       AuditPort
	approvals   ApprovalPort
	metrics     *observability.LedgerMetrics
	logger      *slog.Logger
	gate        *workflow.Gate[RequisitionStatus, PurchaseRequisition]
	validate    *validator.Validate
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, assignments AssignmentPort, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		assignments: assignments,
		audit:       audit,
		approvals:   cfg.Approvals,
		metrics:     cfg.Metrics,
		logger:      logger,
		gate:        NewRequisitionGate(),
		validate:    validator.New(),
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.gate.WithNow(now)
	}
}

// CreateRequisitionInput describes creation payload.
type CreateRequisitionInput struct {
	OrganizationID int64       `validate:"required,gt=0"`
	CostCenterID   int64       `validate:"required,gt=0"`
	ProjectID      *int64      `validate:"omitempty,gt=0"`
	RequestedBy    int64       `validate:"required,gt=0"`
	Note           string      `validate:"max=1000"`
	Lines          []LineInput `validate:"required,min=1,dive"`
}

// LineInput describes request line.
type LineInput struct {
	ProductID int64 `validate:"required,gt=0"`
	Qty       decimal.Decimal
	Note      string `validate:"max=500"`
}

// TransitionInput moves a requisition to another status.
type TransitionInput struct {
	RequisitionID int64             `validate:"required,gt=0"`
	To            RequisitionStatus `validate:"required"`
	ActorID       int64             `validate:"required,gt=0"`
	Note          string            `validate:"max=1000"`
}

// CreateRequisition numbers and stores a new draft requisition.
func (s *Service) CreateRequisition(ctx context.Context, input CreateRequisitionInput) (PurchaseRequisition, error) {
	if err := s.validate.Struct(input); err != nil {
		return PurchaseRequisition{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	params := RequisitionParams{
		OrganizationID: input.OrganizationID,
		CostCenterID:   input.CostCenterID,
		ProjectID:      input.ProjectID,
		RequestedBy:    input.RequestedBy,
		Note:           input.Note,
		Lines:          make([]LineParams, len(input.Lines)),
	}
	for i, l := range input.Lines {
		params.Lines[i] = LineParams(l)
	}

	now := s.now().UTC()
	var created PurchaseRequisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, shared.RequisitionSequenceKey(now.Year()))
		if err != nil {
			return err
		}
		pr, err := NewRequisition(params, seq, now)
		if err != nil {
			return err
		}
		created, err = tx.InsertRequisition(ctx, pr)
		return err
	})
	if err != nil {
		return PurchaseRequisition{}, err
	}
	s.recordAudit(ctx, input.RequestedBy, "PR_CREATE", auditEntity, strconv.FormatInt(created.ID, 10), map[string]any{"number": created.Number})
	return created, nil
}

// TransitionRequisition moves a requisition along RequisitionTransitions.
// Approving or rejecting requires the approver role in one of the
// requisition's contexts.
func (s *Service) TransitionRequisition(ctx context.Context, input TransitionInput) (PurchaseRequisition, error) {
	if err := s.validate.Struct(input); err != nil {
		return PurchaseRequisition{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var updated PurchaseRequisition
	var from RequisitionStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRequisitionForUpdate(ctx, input.RequisitionID)
		if err != nil {
			return err
		}
		if err := RequisitionTransitions.Check(current.Status, input.To); err != nil {
			return err
		}
		if requiresApprover(input.To) {
			if err := s.authorize(ctx, input.ActorID, current); err != nil {
				return err
			}
		}
		next, err := s.gate.Attempt(ctx, current, input.To)
		if err != nil {
			return err
		}
		if err := tx.UpdateRequisitionStatus(ctx, next); err != nil {
			return err
		}
		from, updated = current.Status, next
		return nil
	})
	if err != nil {
		if errors.Is(err, workflow.ErrIllegalTransition) {
			s.metrics.IllegalTransition("purchase_requisition")
		}
		return PurchaseRequisition{}, err
	}

	s.recordApproval(ctx, input, updated)
	s.recordAudit(ctx, input.ActorID, "PR_TRANSITION", auditEntity, strconv.FormatInt(updated.ID, 10), map[string]any{
		"number": updated.Number,
		"from":   string(from),
		"to":     string(updated.Status),
		"note":   input.Note,
	})
	return updated, nil
}

// AvailableTransitions lists the statuses a requisition may move to next.
func (s *Service) AvailableTransitions(status RequisitionStatus) []workflow.Option[RequisitionStatus] {
	return RequisitionTransitions.Available(status)
}

// GetRequisition returns a requisition with its lines.
func (s *Service) GetRequisition(ctx context.Context, id int64) (PurchaseRequisition, error) {
	return s.repo.GetRequisition(ctx, id)
}

func (s *Service) authorize(ctx context.Context, actorID int64, pr PurchaseRequisition) error {
	if s.assignments == nil {
		return fmt.Errorf("%w: no approval assignments configured", shared.ErrForbidden)
	}
	for _, ref := range pr.Contexts() {
		ok, err := s.assignments.HasRole(ctx, actorID, approverRole, ref)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: user %d is not an approver for cost center %d", shared.ErrForbidden, actorID, pr.CostCenterID)
}

func (s *Service) recordApproval(ctx context.Context, input TransitionInput, pr PurchaseRequisition) {
	if s.approvals == nil {
		return
	}
	var action shared.ApprovalAction
	switch pr.Status {
	case StatusSubmittedForApproval:
		action = shared.ApprovalSubmit
	case StatusApproved:
		action = shared.ApprovalApprove
	case StatusRejected:
		action = shared.ApprovalReject
	default:
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   pr.UUID,
		ActorID: input.ActorID,
		Action:  action,
		Note:    input.Note,
		At:      s.now(),
	})
	if err != nil {
		s.logger.Warn("record approval", slog.String("number", pr.Number), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("procurement audit", slog.String("action", action), slog.Any("error", err))
	}
}

// AssignApprover grants userID the approver role in ref.
func (s *Service) AssignApprover(ctx context.Context, userID int64, ref shared.ContextRef) error {
	writer, ok := s.assignments.(AssignmentWriter)
	if !ok {
		return ErrAssignmentsReadOnly
	}
	a := shared.ApprovalAssignment{UserID: userID, Role: approverRole, Context: ref}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := writer.Assign(ctx, a); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "APPROVER_ASSIGN", "approval_assignment", a.Key(), nil)
	return nil
}

// RevokeApprover removes the approver role of userID in ref.
func (s *Service) RevokeApprover(ctx context.Context, userID int64, ref shared.ContextRef) error {
	writer, ok := s.assignments.(AssignmentWriter)
	if !ok {
		return ErrAssignmentsReadOnly
	}
	a := shared.ApprovalAssignment{UserID: userID, Role: approverRole, Context: ref}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := writer.Revoke(ctx, a); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "APPROVER_REVOKE", "approval_assignment", a.Key(), nil)
	return nil
}

// ListApprovers returns the assignments held in ref.
func (s *Service) ListApprovers(ctx context.Context, ref shared.ContextRef) ([]shared.ApprovalAssignment, error) {
	if ref == nil || ref.RefID() <= 0 {
		return nil, fmt.Errorf("%w: context required", ErrValidation)
	}
	lister, ok := s.assignments.(AssignmentLister)
	if !ok {
		return nil, ErrAssignmentsReadOnly
	}
	return lister.ListForContext(ctx, ref)
}

// ApprovalHistory returns the recorded approvals of a requisition, oldest
// first. It returns nil when no history store is configured.
func (s *Service) ApprovalHistory(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	pr, err := s.repo.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	history, ok := s.approvals.(ApprovalHistory)
	if !ok {
		return nil, nil
	}
	return history.List(ctx, approvalModule, pr.UUID)
}
